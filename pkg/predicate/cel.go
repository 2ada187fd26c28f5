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

package predicate

import (
	"context"
	"fmt"
	"time"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
	"github.com/google/cel-go/interpreter"
	"k8s.io/klog/v2"

	"github.com/rexagod/resource-state-metrics/pkg/transport"
)

// CELEvaluator compiles and evaluates a boolean CEL expression against an
// object's metadata, an optional extension to spec.md §4.6's predicate
// filter for deployments that want richer match conditions than a fixed
// projection (e.g. "o.generation > 1 && 'tier' in o.labels"). Grounded on
// the teacher's pkg/resolver/cel.go environment/program construction and
// cost-tracking, generalized from string resolution to a boolean decision.
type CELEvaluator struct {
	logger    klog.Logger
	env       *cel.Env
	costLimit uint64
	timeout   time.Duration
}

// NewCELEvaluator compiles env options once; Eval is safe for concurrent use
// across goroutines since cel.Program values are immutable after creation.
func NewCELEvaluator(logger klog.Logger, costLimit uint64, timeout time.Duration) (*CELEvaluator, error) {
	env, err := cel.NewEnv(
		cel.CrossTypeNumericComparisons(true),
		cel.DefaultUTCTimeZone(true),
		cel.EagerlyValidateDeclarations(true),
		cel.Variable("o", cel.DynType),
	)
	if err != nil {
		return nil, fmt.Errorf("creating CEL environment: %w", err)
	}

	return &CELEvaluator{logger: logger, env: env, costLimit: costLimit, timeout: timeout}, nil
}

type celCostEstimator struct{}

var _ interpreter.ActualCostEstimator = celCostEstimator{}

func (celCostEstimator) CallCost(function string, _ string, _ []ref.Val, _ ref.Val) *uint64 {
	cost := uint64(1)

	return &cost
}

// Eval compiles expr (lazily, once per call — callers needing hot-path
// reuse should cache the *cel.Program their expression compiles to) and
// evaluates it against obj's metadata fields under the variable name "o".
// A compile or evaluation failure is logged and treated as a non-match,
// mirroring the teacher's "ignore and fall back" resolver behavior rather
// than propagating a CEL error into the watch pipeline.
func (e *CELEvaluator) Eval(ctx context.Context, expr string, obj transport.Object) bool {
	logger := e.logger.WithValues("expr", expr)

	ast, iss := e.env.Parse(expr)
	if iss.Err() != nil {
		logger.Error(iss.Err(), "ignoring CEL predicate: parse error")

		return false
	}

	program, err := e.env.Program(
		ast,
		cel.CostLimit(e.costLimit),
		cel.CostTracking(celCostEstimator{}),
	)
	if err != nil {
		logger.Error(err, "ignoring CEL predicate: program construction error")

		return false
	}

	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	input := map[string]any{
		"name":        obj.GetName(),
		"namespace":   obj.GetNamespace(),
		"generation":  obj.GetGeneration(),
		"labels":      obj.GetLabels(),
		"annotations": obj.GetAnnotations(),
	}

	out, details, err := program.ContextEval(ctx, map[string]any{"o": input})
	if details != nil {
		logger = logger.WithValues("cost", *details.ActualCost())
	}
	if err != nil {
		logger.V(1).Info("ignoring CEL predicate: evaluation error", "err", err)

		return false
	}

	b, ok := out.Value().(bool)
	if !ok || out.Type() != types.BoolType {
		logger.V(1).Info("ignoring CEL predicate: expression did not evaluate to a bool")

		return false
	}

	return b
}
