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

// Package config defines the flag/environment-variable options surface for
// this module's watcher/engine stack (spec.md §6 "Configuration options"),
// modeled line for line on the teacher's internal/options.go: flag.*
// definitions, an environment-variable override pass via flag.VisitAll, and
// a validateFlag hook. The teacher's RSM_ prefix becomes CTRLKIT_ here since
// this module is no longer specific to resource-state-metrics.
package config

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"k8s.io/klog/v2"
)

const envPrefix = "CTRLKIT_"

const (
	labelSelectorFlagName  = "label-selector"
	fieldSelectorFlagName  = "field-selector"
	namespaceFlagName      = "namespace"
	timeoutSecondsFlagName = "timeout-seconds"
	pageSizeFlagName       = "page-size"
	streamingListsFlagName = "streaming-lists"
	concurrencyFlagName    = "concurrency"
	backoffMinFlagName     = "backoff-min-seconds"
	backoffMaxFlagName     = "backoff-max-seconds"
	backoffFactorFlagName  = "backoff-factor"
	backoffJitterFlagName  = "backoff-jitter"
)

// Options is the flag/env-var-backed configuration surface spec.md §6
// recognizes for the watcher and engine. All=true means the "all
// namespaces" scope; Namespace is ignored in that case.
type Options struct {
	LabelSelector  *string
	FieldSelector  *string
	Namespace      *string
	All            *bool
	TimeoutSeconds *int
	PageSize       *int64
	StreamingLists *bool
	Concurrency    *int
	BackoffMin     *float64
	BackoffMax     *float64
	BackoffFactor  *float64
	BackoffJitter  *float64

	logger klog.Logger
}

// New returns an Options bound to logger for its override-tracing logs.
func New(logger klog.Logger) *Options {
	return &Options{logger: logger}
}

// Read registers every flag against the default flag.CommandLine, parses
// it, and applies any CTRLKIT_-prefixed environment-variable overrides for
// flags left at their default value (command-line flags always win, per
// spec.md's "the client already knows" philosophy of explicit configuration
// taking precedence over ambient environment state).
func (o *Options) Read() {
	o.LabelSelector = flag.String(labelSelectorFlagName, "", "Label selector passed through to list/watch requests.")
	o.FieldSelector = flag.String(fieldSelectorFlagName, "", "Field selector passed through to list/watch requests.")
	o.Namespace = flag.String(namespaceFlagName, "", "Namespace to scope the watch to. Ignored if --namespace-all is set.")
	o.All = flag.Bool("namespace-all", false, "Watch across all namespaces, ignoring --namespace.")
	o.TimeoutSeconds = flag.Int(timeoutSecondsFlagName, 290, "Server-side watch timeout, in seconds, before a rewatch is attempted.")
	o.PageSize = flag.Int64(pageSizeFlagName, 0, "Initial list pagination page size. 0 leaves the choice to the server.")
	o.StreamingLists = flag.Bool(streamingListsFlagName, false, "Use watch-based initial lists instead of paginated list calls.")
	o.Concurrency = flag.Int(concurrencyFlagName, 1, "Engine in-flight reconcile limit.")
	o.BackoffMin = flag.Float64(backoffMinFlagName, 1, "Minimum backoff delay, in seconds.")
	o.BackoffMax = flag.Float64(backoffMaxFlagName, 30, "Maximum backoff delay, in seconds.")
	o.BackoffFactor = flag.Float64(backoffFactorFlagName, 2, "Backoff multiplier applied on each consecutive failure.")
	o.BackoffJitter = flag.Float64(backoffJitterFlagName, 0.2, "Backoff jitter fraction (± jitter*delay) applied to each sample.")
	flag.Parse()

	flag.VisitAll(func(f *flag.Flag) {
		if f.Value.String() != f.DefValue {
			if err := o.validateFlag(f.Name, f.Value.String()); err != nil {
				panic(fmt.Sprintf("invalid value for flag %s: %v", f.Name, err))
			}

			return
		}

		name := f.Name
		envName := envPrefix + strings.ReplaceAll(strings.ToUpper(name), "-", "_")
		value, ok := os.LookupEnv(envName)
		if !ok {
			return
		}

		o.logger.V(1).Info("overriding flag from environment", "flag", name, "env", envName, "value", value)
		if err := flag.Set(name, value); err != nil {
			panic(fmt.Sprintf("failed to set flag %s to %s: %v", name, value, err))
		}
	})
}

// validateFlag rejects a handful of flag values that would otherwise only
// surface as a confusing failure deep inside the watcher or backoff.
func (o *Options) validateFlag(name, value string) error {
	switch name {
	case timeoutSecondsFlagName:
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("%s must be an integer: %w", name, err)
		}
		if n <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	case concurrencyFlagName:
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("%s must be an integer: %w", name, err)
		}
		if n < 1 {
			return fmt.Errorf("%s must be at least 1", name)
		}
	case backoffMinFlagName, backoffMaxFlagName:
		n, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("%s must be a number: %w", name, err)
		}
		if n <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}

	return nil
}
