// Copyright 2026 The JazzPetri Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package analysis

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/jazzpetri/popsafe/abstraction"
	"github.com/jazzpetri/popsafe/compose"
	"github.com/jazzpetri/popsafe/gal"
	"github.com/jazzpetri/popsafe/jobs"
	"github.com/jazzpetri/popsafe/oracle"
	"github.com/jazzpetri/popsafe/protocol"
	"github.com/jazzpetri/popsafe/telemetry"
)

// Verdict is the outcome of an analysis.
type Verdict string

const (
	// VerdictSafe means no unsafe configuration is reachable.
	VerdictSafe Verdict = "safe"

	// VerdictUnsafe means at least one unsafe configuration is reachable.
	VerdictUnsafe Verdict = "unsafe"

	// VerdictInconclusive means the oracle could not decide some query
	// and none was found reachable.
	VerdictInconclusive Verdict = "inconclusive"
)

// verdictFailed labels jobs that ended before a verdict.
const verdictFailed = "failed"

// Fold combines the oracle findings: any reachable configuration makes
// the protocol unsafe, otherwise any unavailable answer makes the result
// inconclusive. No findings at all is safe.
func Fold(findings []jobs.Finding) Verdict {
	verdict := VerdictSafe
	for _, f := range findings {
		switch f.Status {
		case telemetry.StatusReachable:
			return VerdictUnsafe
		case telemetry.StatusUnavailable:
			verdict = VerdictInconclusive
		}
	}
	return verdict
}

// analyze runs the pipeline for job id and ends the job. Every failure is
// recorded on the job.
func (s *Service) analyze(ctx context.Context, id, text string) {
	s.running.Inc()
	s.tel.Metrics.JobsInFlight.Inc()
	defer func() {
		s.running.Dec()
		s.tel.Metrics.JobsInFlight.Dec()
	}()

	ctx, span := s.tel.Start(ctx, "analysis.job", attribute.String("job_id", id))
	result, err := s.pipeline(ctx, id, text)
	telemetry.End(span, err)

	// the store must record the outcome even if ctx was cancelled
	done := context.WithoutCancel(ctx)
	if err != nil {
		s.tel.Metrics.JobsTotal.WithLabelValues(verdictFailed).Inc()
		if rerr := s.report(done, id, jobs.KindError, err.Error()); rerr != nil {
			s.logger.Error("job update lost", "job_id", id, "error", rerr)
		}
		if ferr := s.store.Finish(done, id, jobs.StatusFailed, result); ferr != nil {
			s.logger.Error("job could not be finished", "job_id", id, "error", ferr)
		}
		return
	}

	s.tel.Metrics.JobsTotal.WithLabelValues(result.Verdict).Inc()
	if ferr := s.store.Finish(done, id, jobs.StatusCompleted, result); ferr != nil {
		s.logger.Error("job could not be finished", "job_id", id, "error", ferr)
	}
}

// pipeline returns the job result, or an error that fails the job. The
// partial result is returned with the error when there is one.
func (s *Service) pipeline(ctx context.Context, id, text string) (*jobs.Result, error) {
	if err := s.store.Start(ctx, id); err != nil {
		return nil, err
	}
	info := func(format string, args ...any) error {
		return s.report(ctx, id, jobs.KindInfo, fmt.Sprintf(format, args...))
	}

	d, err := s.parse(ctx, text)
	if err != nil {
		return nil, err
	}
	result := &jobs.Result{Protocol: Summarize(d)}
	check := protocol.Check(d)
	if err := info("parsed protocol: %d agent states (%d unsafe), %d local transitions, %d environment transitions",
		check.Analysis["agent_states"], check.Analysis["unsafe_states"],
		check.Analysis["agent_transitions"], check.Analysis["environment_transitions"]); err != nil {
		return result, err
	}
	for _, issue := range check.Warnings {
		if err := s.report(ctx, id, jobs.KindWarning, issue.Message); err != nil {
			return result, err
		}
	}

	composed := s.compose(ctx, d)
	result.GlobalTransitions = len(composed.Transitions)
	result.Unmatched = len(composed.Unmatched)
	for _, u := range composed.Unmatched {
		if err := s.report(ctx, id, jobs.KindWarning, "unmatched synchronization: "+u.String()); err != nil {
			return result, err
		}
	}
	if err := info("composed %d global transitions from %d expansions", len(composed.Transitions), composed.Expansions); err != nil {
		return result, err
	}

	enc, err := s.encode(ctx, id, d, composed)
	if err != nil {
		return result, err
	}
	result.GuardedTransitions = enc.GuardedTransitions()
	if err := info("encoded counter system %s: %d counters, %d guarded transitions, %d unsafe configurations",
		enc.System.Name, len(enc.System.Variables), enc.GuardedTransitions(), len(enc.Unsafe)); err != nil {
		return result, err
	}

	path, err := s.writeArtifact(id, enc.System)
	if err != nil {
		return result, err
	}
	result.Artifact = path
	if err := info("wrote %s", path); err != nil {
		return result, err
	}

	if len(enc.Unsafe) == 0 {
		result.Verdict = string(VerdictSafe)
		return result, s.report(ctx, id, jobs.KindSuccess, "no transition populates an unsafe state: protocol is safe")
	}

	answers := s.queryAll(ctx, enc, path)
	if err := ctx.Err(); err != nil {
		return result, err
	}
	for i, a := range answers {
		for _, line := range a.output {
			if err := info("%s", line); err != nil {
				return result, err
			}
		}
		kind, msg := describe(enc.Unsafe[i], a)
		if err := s.report(ctx, id, kind, msg); err != nil {
			return result, err
		}
		result.Findings = append(result.Findings, a.finding)
	}

	verdict := Fold(result.Findings)
	result.Verdict = string(verdict)
	kind := jobs.KindSuccess
	switch verdict {
	case VerdictUnsafe:
		kind = jobs.KindError
	case VerdictInconclusive:
		kind = jobs.KindWarning
	}
	return result, s.report(ctx, id, kind, "verdict: protocol is "+string(verdict))
}

func (s *Service) parse(ctx context.Context, text string) (d *protocol.Description, err error) {
	_, span := s.tel.Start(ctx, "analysis.parse")
	defer func() { telemetry.End(span, err) }()
	d, err = protocol.Parse(text)
	if err != nil {
		return nil, fmt.Errorf("parse protocol: %w", err)
	}
	return d, nil
}

func (s *Service) compose(ctx context.Context, d *protocol.Description) *compose.Result {
	_, span := s.tel.Start(ctx, "analysis.compose")
	defer span.End()

	r := compose.Compose(d, compose.Options{MaxConcurrency: s.opts.MaxConcurrency, Deduplicate: s.opts.Deduplicate})
	span.SetAttributes(
		attribute.Int("global_transitions", len(r.Transitions)),
		attribute.Int("unmatched", len(r.Unmatched)))
	s.tel.Metrics.GlobalTransitions.Observe(float64(len(r.Transitions)))
	s.tel.Metrics.UnmatchedTotal.Add(float64(len(r.Unmatched)))
	return r
}

func (s *Service) encode(ctx context.Context, id string, d *protocol.Description, r *compose.Result) (enc *abstraction.Encoding, err error) {
	_, span := s.tel.Start(ctx, "analysis.encode", attribute.Int("instance_bound", s.opts.InstanceBound))
	defer func() { telemetry.End(span, err) }()

	enc, err = abstraction.Encode(d, r.Transitions, s.encodeOptions(id))
	if err != nil {
		return nil, err
	}
	s.tel.Metrics.GuardedTransitions.Observe(float64(enc.GuardedTransitions()))
	return enc, nil
}

// writeArtifact writes sys to <WorkDir>/<id>.gal.
func (s *Service) writeArtifact(id string, sys *gal.System) (string, error) {
	if err := os.MkdirAll(s.opts.WorkDir, 0o755); err != nil {
		return "", fmt.Errorf("create work dir: %w", err)
	}
	path := filepath.Join(s.opts.WorkDir, id+".gal")
	if err := os.WriteFile(path, []byte(sys.String()), 0o644); err != nil {
		return "", fmt.Errorf("write counter system: %w", err)
	}
	return path, nil
}

// answer is the outcome of one oracle query.
type answer struct {
	finding jobs.Finding
	output  []string
	err     error
}

// queryAll asks the oracle about every unsafe configuration on the query
// pool and returns the answers in configuration order.
func (s *Service) queryAll(ctx context.Context, enc *abstraction.Encoding, path string) []answer {
	answers := make([]answer, len(enc.Unsafe))
	group := s.queries.NewGroup()
	for i, u := range enc.Unsafe {
		group.Submit(func() {
			answers[i] = s.query(ctx, oracle.Query{System: enc.System, Path: path, Target: u.Marking()}, u)
		})
	}
	_ = group.Wait()
	return answers
}

func (s *Service) query(ctx context.Context, q oracle.Query, u abstraction.UnsafeConfiguration) answer {
	name := s.oracle.Name()
	ctx, span := s.tel.Start(ctx, "analysis.oracle",
		attribute.String("oracle", name),
		attribute.String("configuration", u.Weights.String()))

	a := answer{finding: jobs.Finding{
		Configuration: u.Weights.String(),
		Transitions:   u.Transitions,
	}}
	start := s.opts.Clock.Now()
	res, err := s.oracle.Reachable(ctx, q)
	s.tel.Metrics.OracleDuration.WithLabelValues(name).Observe(s.opts.Clock.Now().Sub(start).Seconds())
	if res != nil {
		a.output = res.Output
	}

	switch {
	case err != nil:
		a.err = err
		a.finding.Status = telemetry.StatusUnavailable
		a.finding.Error = err.Error()
		if !errors.Is(err, oracle.ErrUnavailable) {
			// cancellation and other failures are still no verdict
			a.finding.Error = fmt.Sprintf("%v: %v", oracle.ErrUnavailable, err)
		}
	case res.Reachable:
		a.finding.Status = telemetry.StatusReachable
		a.finding.Witness = res.Witness
	default:
		a.finding.Status = telemetry.StatusUnreachable
	}
	s.tel.Metrics.OracleQueriesTotal.WithLabelValues(name, a.finding.Status).Inc()
	span.SetAttributes(attribute.String("status", a.finding.Status))
	telemetry.End(span, err)
	return a
}

// describe renders the update for one answer.
func describe(u abstraction.UnsafeConfiguration, a answer) (jobs.Kind, string) {
	via := strings.Join(u.Transitions, ", ")
	switch a.finding.Status {
	case telemetry.StatusReachable:
		msg := fmt.Sprintf("unsafe configuration %s is reachable (enables %s)", u.Weights, via)
		if len(a.finding.Witness) > 0 {
			msg += "; witness: " + strings.Join(a.finding.Witness, " ")
		}
		return jobs.KindError, msg
	case telemetry.StatusUnreachable:
		return jobs.KindInfo, fmt.Sprintf("unsafe configuration %s is unreachable", u.Weights)
	default:
		return jobs.KindWarning, fmt.Sprintf("no verdict for unsafe configuration %s: %v", u.Weights, a.err)
	}
}

// Summarize restates d for the job result.
func Summarize(d *protocol.Description) *jobs.Summary {
	sum := &jobs.Summary{
		AgentActions:       d.Agent.Actions,
		EnvironmentStates:  d.Environment.States,
		EnvironmentActions: d.Environment.Actions,
	}
	for _, st := range d.Agent.States {
		sum.AgentStates = append(sum.AgentStates, jobs.StateFlag{Name: st.Name, Safe: st.Safe()})
	}
	sum.AgentProtocol = protocolMap(d.Agent.Protocol)
	sum.EnvironmentProtocol = protocolMap(d.Environment.Protocol)
	return sum
}

func protocolMap(entries []protocol.ProtocolEntry) map[string][]string {
	if len(entries) == 0 {
		return nil
	}
	m := make(map[string][]string, len(entries))
	for _, e := range entries {
		m[e.State] = e.Actions
	}
	return m
}
