package wifi

import (
	"context"
	"strconv"
	"time"

	"github.com/pscheid92/wifisteer/internal/domain"
)

const transitionTimeout = 5 * time.Second

// HostapdExecutor issues BSS transition-management requests through hostapd_cli.
// Its output is returned verbatim; exit status is not interpreted.
type HostapdExecutor struct {
	runner Runner
}

var _ domain.HandoffExecutor = (*HostapdExecutor)(nil)

func NewHostapdExecutor(runner Runner) *HostapdExecutor {
	return &HostapdExecutor{runner: runner}
}

func (e *HostapdExecutor) Transition(ctx context.Context, req domain.TransitionRequest) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, transitionTimeout)
	defer cancel()

	return e.runner.Output(ctx, "hostapd_cli", transitionArgs(req)...)
}

func transitionArgs(req domain.TransitionRequest) []string {
	args := []string{"-i", req.Interface, "bss_tm_req", req.Client}
	if req.DisassocImminent {
		args = append(args, "disassoc_imminent=1")
	}
	if req.DisassocTimer > 0 {
		args = append(args, "disassoc_timer="+strconv.Itoa(req.DisassocTimer))
	}
	if req.Prefer {
		args = append(args, "prefer=1")
	}
	args = append(args, "btm_mode="+strconv.Itoa(req.Mode), "neighbor="+req.Neighbor.String())
	return args
}
