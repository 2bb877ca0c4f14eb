package output

import (
	"io"
	"time"

	"github.com/schollz/progressbar/v3"
)

// NewProgress returns a progress bar on the diagnostic writer. The bar is
// hidden when not attached to a terminal or in JSON mode.
func (r *Renderer) NewProgress(total int, desc string) *progressbar.ProgressBar {
	if !r.isTTY || r.EffectiveMode() == ModeJSON {
		return progressbar.NewOptions(total,
			progressbar.OptionSetWriter(io.Discard),
			progressbar.OptionSetVisibility(false))
	}

	return progressbar.NewOptions(total,
		progressbar.OptionSetWriter(r.errOut),
		progressbar.OptionSetDescription(desc),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(30),
		progressbar.OptionThrottle(65*time.Millisecond),
		progressbar.OptionClearOnFinish(),
	)
}
