/*
Copyright 2025 The Kubernetes resource-state-metrics Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package leaderelection

import (
	"context"
	"time"

	"k8s.io/klog/v2"
)

// Elector drives a Lock's acquire/renew cycle on a fixed cadence and
// notifies a caller-supplied critical section of leadership changes
// (spec.md §4.5 "run(critical: future)"). The controller engine integration
// (spec.md §4.4) uses the same Run loop to Pause/Resume its dispatch.
type Elector struct {
	lock          *Lock
	renewInterval time.Duration
	retryInterval time.Duration
	logger        klog.Logger
}

// NewElector returns an Elector. renewInterval should be at most
// expiration/3 (spec.md §4.5's renew-cadence requirement); retryInterval
// governs how often a non-holder re-attempts acquisition.
func NewElector(logger klog.Logger, lock *Lock, renewInterval, retryInterval time.Duration) *Elector {
	return &Elector{lock: lock, renewInterval: renewInterval, retryInterval: retryInterval, logger: logger}
}

// OnLeadershipChange is invoked with true when this instance starts holding
// the lease and false when it stops (including on Run's own exit).
type OnLeadershipChange func(isLeader bool)

// Run acquires and renews the lease on a timer until ctx is cancelled,
// invoking onChange on every observed transition. It releases the lease
// (spec.md §4.5: "run releases on any exit path") before returning, using a
// short-lived background context since ctx is already done by then.
func (e *Elector) Run(ctx context.Context, onChange OnLeadershipChange) {
	wasLeader := false
	ticker := time.NewTicker(e.tickInterval(wasLeader))
	defer ticker.Stop()

	defer func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if _, err := e.lock.TryRelease(releaseCtx); err != nil {
			e.logger.V(1).Info("releasing lease on exit failed", "err", err)
		}
		if wasLeader {
			onChange(false)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			isLeader, err := e.lock.TryAcquire(ctx)
			if err != nil {
				e.logger.V(1).Info("lease acquire/renew attempt failed", "err", err)
			}

			if isLeader != wasLeader {
				onChange(isLeader)
				wasLeader = isLeader
				ticker.Reset(e.tickInterval(wasLeader))
			}
		}
	}
}

func (e *Elector) tickInterval(isLeader bool) time.Duration {
	if isLeader {
		return e.renewInterval
	}

	return e.retryInterval
}
