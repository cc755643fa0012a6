package engine

// Sync flushes every dirty inode through to its backing block, then
// flushes every dirty block to the device. The inode cache must drain
// first: its write-through only stages bytes into the block cache, so
// syncing blocks first could miss inodes still dirty only in-cache.
func (e *Engine) Sync() error {
	if err := e.inodes.Sync(); err != nil {
		return err
	}
	return e.blocks.Sync()
}

// Shutdown flushes the engine and closes the underlying device. The
// engine must not be used afterward.
func (e *Engine) Shutdown() error {
	if err := e.Sync(); err != nil {
		return err
	}
	return e.dev.Close()
}
