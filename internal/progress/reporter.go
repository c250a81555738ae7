package progress

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// Options configures the progress reporter.
type Options struct {
	// TotalDownloads is how many downloads the run will perform.
	TotalDownloads int

	// Output is where to write progress output.
	// Default: os.Stderr
	Output io.Writer

	// UpdateInterval is how often to update the progress display.
	// Default: 500ms
	UpdateInterval time.Duration
}

type download struct {
	completed int64
	total     int64
	done      bool
	failed    bool
}

// Reporter outputs human-readable progress for a set of concurrent downloads.
type Reporter struct {
	opts Options

	mu        sync.Mutex
	downloads map[string]*download
	started   time.Time
	lastTime  time.Time
	lastBytes int64
	running   bool
	stopCh    chan struct{}
	doneCh    chan struct{}
	stopped   bool
}

// NewReporter creates a new progress reporter.
func NewReporter(opts Options) *Reporter {
	if opts.Output == nil {
		opts.Output = os.Stderr
	}
	if opts.UpdateInterval == 0 {
		opts.UpdateInterval = 500 * time.Millisecond
	}
	return &Reporter{
		opts:      opts,
		downloads: make(map[string]*download),
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
}

// Start begins outputting progress information.
func (r *Reporter) Start() {
	r.mu.Lock()
	r.started = time.Now()
	r.lastTime = r.started
	r.running = true
	r.mu.Unlock()
	go r.updateLoop()
}

// Stop prints the final status and stops the reporter, blocking until the
// final line has been written. Safe to call twice.
func (r *Reporter) Stop() {
	r.mu.Lock()
	if r.stopped {
		running := r.running
		r.mu.Unlock()
		if running {
			<-r.doneCh
		}
		return
	}
	r.stopped = true
	running := r.running
	r.mu.Unlock()
	close(r.stopCh)
	if running {
		<-r.doneCh
	}
}

// Update records the byte progress of one download, keyed by URL. Total may
// be 0 when the origin does not declare a length.
func (r *Reporter) Update(url string, completed, total int64) {
	r.mu.Lock()
	d := r.downloads[url]
	if d == nil {
		d = &download{}
		r.downloads[url] = d
	}
	d.completed = completed
	d.total = total
	r.mu.Unlock()
}

// Completed marks one download as finished.
func (r *Reporter) Completed(url string) {
	r.mu.Lock()
	d := r.downloads[url]
	if d == nil {
		d = &download{}
		r.downloads[url] = d
	}
	d.done = true
	r.mu.Unlock()
}

// Failed marks one download as failed; its bytes no longer count toward the
// aggregate totals.
func (r *Reporter) Failed(url string) {
	r.mu.Lock()
	d := r.downloads[url]
	if d == nil {
		d = &download{}
		r.downloads[url] = d
	}
	d.failed = true
	r.mu.Unlock()
}

func (r *Reporter) updateLoop() {
	defer close(r.doneCh)
	ticker := time.NewTicker(r.opts.UpdateInterval)
	defer ticker.Stop()
	for {
		select {
		case <-r.stopCh:
			r.printFinal()
			return
		case <-ticker.C:
			r.printProgress()
		}
	}
}

// snapshot aggregates the per-download state. Caller must not hold r.mu.
func (r *Reporter) snapshot() (bytes, totalBytes int64, done, failed, active int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, d := range r.downloads {
		switch {
		case d.failed:
			failed++
		case d.done:
			done++
			bytes += d.completed
			totalBytes += d.total
		default:
			active++
			bytes += d.completed
			totalBytes += d.total
		}
	}
	return bytes, totalBytes, done, failed, active
}

func (r *Reporter) printProgress() {
	bytes, totalBytes, done, failed, _ := r.snapshot()

	r.mu.Lock()
	now := time.Now()
	elapsed := now.Sub(r.lastTime).Seconds()
	if elapsed < 0.1 {
		elapsed = 0.1
	}
	speed := float64(bytes-r.lastBytes) / elapsed
	r.lastTime = now
	r.lastBytes = bytes
	r.mu.Unlock()

	var percent float64
	if totalBytes > 0 {
		percent = float64(bytes) / float64(totalBytes) * 100
	}
	status := fmt.Sprintf("%d/%d done", done, r.opts.TotalDownloads)
	if failed > 0 {
		status += fmt.Sprintf(", %d failed", failed)
	}
	fmt.Fprintf(r.opts.Output, "\r[nuke] %5.1f%% | %s / %s | %s/s | %s    ",
		percent,
		formatBytes(bytes),
		formatBytes(totalBytes),
		formatBytes(int64(speed)),
		status,
	)
}

func (r *Reporter) printFinal() {
	bytes, _, done, failed, _ := r.snapshot()
	duration := time.Since(r.started)
	avgSpeed := float64(bytes) / duration.Seconds()

	status := fmt.Sprintf("%d/%d done", done, r.opts.TotalDownloads)
	if failed > 0 {
		status += fmt.Sprintf(", %d failed", failed)
	}
	fmt.Fprintf(r.opts.Output, "\r[nuke] %s | %s in %s | %s/s average    \n",
		status,
		formatBytes(bytes),
		formatDuration(duration),
		formatBytes(int64(avgSpeed)),
	)
}

// formatBytes formats bytes as a human-readable string.
func formatBytes(b int64) string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
		TB = GB * 1024
	)
	switch {
	case b >= TB:
		return fmt.Sprintf("%.2f TB", float64(b)/float64(TB))
	case b >= GB:
		return fmt.Sprintf("%.2f GB", float64(b)/float64(GB))
	case b >= MB:
		return fmt.Sprintf("%.2f MB", float64(b)/float64(MB))
	case b >= KB:
		return fmt.Sprintf("%.2f KB", float64(b)/float64(KB))
	default:
		return fmt.Sprintf("%d B", b)
	}
}

// formatDuration formats a duration as a human-readable string.
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh %dm %ds", int(d.Hours()), int(d.Minutes())%60, int(d.Seconds())%60)
}

// FormatBytes is exported for use by other packages.
func FormatBytes(b int64) string {
	return formatBytes(b)
}
