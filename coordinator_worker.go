package main

import (
	"context"
	"log"
	"time"

	"github.com/intuitherm/bridge/intuitherm"
)

// CycleUpdate is what one refresh cycle produced: a fresh snapshot, or the
// error that failed the cycle. Consumers keep their previous snapshot when
// Err is set.
type CycleUpdate struct {
	Snapshot *intuitherm.Snapshot
	Err      error
}

// coordinatorWorker drives the refresh interval. The first cycle runs
// immediately so entities have data without waiting a full interval.
func coordinatorWorker(
	ctx context.Context,
	coordinator *intuitherm.Coordinator,
	interval time.Duration,
	updateChan chan<- CycleUpdate,
) {
	log.Printf("Coordinator worker started (interval: %s)\n", interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	refresh := func() {
		snapshot, err := coordinator.Refresh(ctx)
		if err != nil {
			log.Printf("Refresh cycle failed: %v\n", err)
		}

		select {
		case updateChan <- CycleUpdate{Snapshot: snapshot, Err: err}:
		case <-ctx.Done():
		}
	}

	refresh()

	for {
		select {
		case <-ticker.C:
			refresh()

		case <-ctx.Done():
			log.Println("Coordinator worker stopped")
			return
		}
	}
}

// broadcastWorker receives cycle updates and fans out to the downstream
// workers using non-blocking sends so one slow consumer cannot stall the
// refresh loop.
func broadcastWorker(ctx context.Context, inputChan <-chan CycleUpdate, outputChans []chan<- CycleUpdate) {
	for {
		select {
		case update := <-inputChan:
			for i, ch := range outputChans {
				select {
				case ch <- update:
				case <-ctx.Done():
					return
				default:
					log.Printf("Warning: downstream worker %d channel full, dropping update\n", i)
				}
			}

		case <-ctx.Done():
			return
		}
	}
}
