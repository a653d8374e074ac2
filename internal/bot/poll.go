// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package bot

import (
	"context"
	"time"

	"go.astrophena.name/mindshot/internal/api/telegram"
)

const (
	longPollTimeout = 30 // seconds
	pollRetryDelay  = 5 * time.Second
)

// Poll receives updates by long polling the Bot API until ctx is canceled.
// Each update is handled in its own goroutine.
func (b *Bot) Poll(ctx context.Context) error {
	var offset int64
	for {
		updates, err := b.tg.GetUpdates(ctx, offset, longPollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			b.logf("getUpdates failed, retrying in %v: %v", pollRetryDelay, err)
			select {
			case <-time.After(pollRetryDelay):
			case <-ctx.Done():
				return ctx.Err()
			}
			continue
		}

		for _, update := range updates {
			if update.ID >= offset {
				offset = update.ID + 1
			}
			go func(update telegram.Update) {
				if err := b.HandleUpdate(ctx, &update); err != nil {
					b.logf("Handling update %d failed: %v", update.ID, err)
				}
			}(update)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}
}
