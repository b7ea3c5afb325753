// Command uring-cp is the external collaborator around the copy core:
// argument parsing, opening/closing files, determining file size,
// pre-allocating the destination, and process-level logging. The core
// itself (github.com/pooh64/uring-cp) never touches a path string.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/sys/unix"

	uringcp "github.com/pooh64/uring-cp"
	"github.com/pooh64/uring-cp/internal/logging"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "uring-cp:", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var (
		blockSize int
		rqCap     int
		wqCap     int
		progress  bool
		verbose   bool
	)

	cmd := &cobra.Command{
		Use:   "uring-cp SOURCE DEST",
		Short: "Copy a file using an io_uring read/write pipeline",
		Long: `uring-cp copies SOURCE to DEST using the asynchronous, block-aligned
read/write pipeline described in this module: a fixed arena of aligned
buffers, bounded read-ahead and write-ahead queues, and a single
io_uring instance driving the whole transfer.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCopy(args[0], args[1], blockSize, rqCap, wqCap, progress, verbose)
		},
	}

	cmd.Flags().IntVar(&blockSize, "block-size", uringcp.DefaultBlockSize, "arena block size in bytes, must be a power of two")
	cmd.Flags().IntVar(&rqCap, "rq-cap", uringcp.DefaultReadQueueCap, "read-ahead queue depth, must be a power of two")
	cmd.Flags().IntVar(&wqCap, "wq-cap", uringcp.DefaultWriteQueueCap, "write-ahead queue depth, must be a power of two")
	cmd.Flags().BoolVar(&progress, "progress", false, "print one line per completed write to stderr")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	return cmd
}

func runCopy(srcPath, dstPath string, blockSize, rqCap, wqCap int, progress, verbose bool) error {
	logConfig := logging.DefaultConfig()
	if verbose {
		logConfig.Level = logging.LevelDebug
	}
	logger := logging.NewLogger(logConfig)
	logging.SetDefault(logger)

	src, err := openDirect(srcPath, os.O_RDONLY)
	if err != nil {
		return fmt.Errorf("opening source: %w", err)
	}
	defer src.Close()

	info, err := src.Stat()
	if err != nil {
		return fmt.Errorf("stat source: %w", err)
	}
	n := info.Size()

	dst, err := openDirect(dstPath, os.O_RDWR|os.O_CREATE|os.O_TRUNC)
	if err != nil {
		return fmt.Errorf("opening destination: %w", err)
	}
	defer dst.Close()

	allocLen := roundup(n, int64(blockSize))
	if allocLen > 0 {
		if err := unix.Fallocate(int(dst.Fd()), 0, 0, allocLen); err != nil {
			return fmt.Errorf("pre-extending destination to %d bytes: %w", allocLen, err)
		}
	}

	logger.Info("starting copy", "source", srcPath, "dest", dstPath, "bytes", n,
		"block_size", blockSize, "rq_cap", rqCap, "wq_cap", wqCap)

	var observer uringcp.Metrics
	opts := uringcp.Options{
		Params: uringcp.Params{
			BlockSize:     blockSize,
			ReadQueueCap:  rqCap,
			WriteQueueCap: wqCap,
		},
		Logger:   logger,
		Observer: progressObserver{metrics: &observer, enabled: progress},
	}

	stats, err := uringcp.Copy(src, dst, n, opts)
	if err != nil {
		logger.Error("copy failed", "error", err, "bytes_written", stats.BytesWritten)
		return err
	}

	logger.Info("copy complete", "bytes_written", stats.BytesWritten)
	return nil
}

// progressObserver adapts uringcp.Metrics into the Observer interface,
// optionally also printing a line per write completion when enabled.
type progressObserver struct {
	metrics *uringcp.Metrics
	enabled bool
}

func (p progressObserver) ObserveRead(offset int64, length int, latencyNs uint64, success bool) {
	p.metrics.ObserveRead(offset, length, latencyNs, success)
}

func (p progressObserver) ObserveWrite(offset int64, length int, latencyNs uint64, success bool) {
	p.metrics.ObserveWrite(offset, length, latencyNs, success)
	if p.enabled {
		fmt.Fprintf(os.Stderr, "write offset=%d len=%d\n", offset, length)
	}
}

func (p progressObserver) ObserveRestart(kind string, offset int64) {
	p.metrics.ObserveRestart(kind, offset)
}

// openDirect opens path with O_DIRECT when the kernel and filesystem
// support it, falling back to a buffered open otherwise; some
// filesystems (tmpfs, overlayfs without support) reject O_DIRECT
// outright, and a copy tool should still work there.
func openDirect(path string, flag int) (*os.File, error) {
	f, err := os.OpenFile(path, flag|unix.O_DIRECT, 0644)
	if err == nil {
		return f, nil
	}
	return os.OpenFile(path, flag, 0644)
}

func roundup(n, blockSize int64) int64 {
	if blockSize <= 0 {
		return n
	}
	rem := n % blockSize
	if rem == 0 {
		return n
	}
	return n + (blockSize - rem)
}
