package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/adhocore/gronx"
	"go.uber.org/fx"

	"github.com/nguyentranbao-ct/mindmap-chat/internal/config"
	log "github.com/nguyentranbao-ct/mindmap-chat/pkg/logger/log_context"
)

// StartSessionSweeper removes idle collaboration sessions on the COLLAB_SWEEP_CRON schedule.
func StartSessionSweeper(lc fx.Lifecycle, conf *config.Config, collab CollaborationUsecase) error {
	expr := conf.Collab.SweepCron
	if !gronx.IsValid(expr) {
		return fmt.Errorf("invalid COLLAB_SWEEP_CRON %q", expr)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				defer close(done)
				runSweeper(ctx, expr, collab)
			}()
			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			<-done
			return nil
		},
	})
	return nil
}

func runSweeper(ctx context.Context, expr string, collab CollaborationUsecase) {
	for {
		now := time.Now()
		next, err := gronx.NextTickAfter(expr, now, false)
		if err != nil {
			log.Errorw(ctx, "sweep next tick failed", "cron", expr, "error", err)
			select {
			case <-time.After(30 * time.Second):
			case <-ctx.Done():
				return
			}
			continue
		}

		select {
		case <-time.After(time.Until(next)):
			if _, err := collab.Sweep(ctx, time.Now()); err != nil {
				log.Errorw(ctx, "session sweep failed", "error", err)
			}
		case <-ctx.Done():
			return
		}
	}
}
