package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/soplang/registry/internal/core"
	"github.com/soplang/registry/internal/store"
)

func (a *app) newSweepCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep [registry.json]",
		Short: "Recompute the valid flag of every package and commit changes",
		Args:  cobra.MaximumNArgs(1),
		RunE:  a.runSweep,
	}
}

func (a *app) runSweep(cmd *cobra.Command, args []string) error {
	path := a.cfg.RegistryPath
	if len(args) == 1 {
		path = args[0]
	}

	ctx, span := a.tracer().Start(cmd.Context(), "sopreg.sweep",
		trace.WithAttributes(attribute.String("registry", path)))
	defer span.End()

	doc, err := store.Load(path)
	if err != nil {
		return err
	}
	if len(doc.Packages) == 0 {
		a.logger.Info("no packages found in registry", "path", path)
	}

	source := a.source()
	out, sweep, err := core.NewEvaluator(source, source, a.coreOptions()...).Evaluate(ctx, doc)
	if err != nil {
		return err
	}

	if cb, ok := a.fetcher.(interface{ BreakerStates() map[string]string }); ok {
		a.logger.Debug("circuit breakers", "states", cb.BreakerStates())
	}

	report := newSweepReport(path, sweep, out, a.urls())
	if sweep.Changed {
		if err := store.Save(path, out); err != nil {
			return err
		}
		if err := a.publish(ctx, path, core.SweepCommitMessage); err != nil {
			return err
		}
		report.Committed = !a.noCommit
	} else {
		a.logger.Info("no changes in validity status")
	}

	format, _ := parseOutput(a.output)
	return writeReport(a.stdout, format, report, report.writeText)
}

func (a *app) newVerifyAppendCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "verify-append <base.json> <proposed.json>",
		Short: "Check that a proposed registry only appends one minimal package",
		Args:  cobra.ExactArgs(2),
		RunE:  a.runVerifyAppend,
	}
}

func (a *app) runVerifyAppend(cmd *cobra.Command, args []string) error {
	_, span := a.tracer().Start(cmd.Context(), "sopreg.verify-append")
	defer span.End()

	base, err := store.Load(args[0])
	if err != nil {
		return err
	}
	proposed, err := store.Load(args[1])
	if err != nil {
		return err
	}

	verr := core.VerifyAppend(base, proposed)
	report := newCheckReport("verify-append", args[1], verr)
	if last := proposed.Last(); verr == nil && last != nil {
		report.Package = last.Repository()
	}
	return a.finishCheck(report, verr)
}

func (a *app) newAdmitCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "admit <registry.json>",
		Short: "Validate the descriptor of the last package in a registry",
		Args:  cobra.ExactArgs(1),
		RunE:  a.runAdmit,
	}
}

func (a *app) runAdmit(cmd *cobra.Command, args []string) error {
	ctx, span := a.tracer().Start(cmd.Context(), "sopreg.admit")
	defer span.End()

	doc, err := store.Load(args[0])
	if err != nil {
		return err
	}

	source := a.source()
	desc, aerr := core.NewAdmitter(source, source, a.coreOptions()...).AdmitLast(ctx, doc)
	report := newCheckReport("admit", args[0], aerr)
	report.Package = desc.Name()
	return a.finishCheck(report, aerr)
}

func (a *app) newEnrichCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "enrich <registry.json>",
		Short: "Copy descriptor fields onto the last package and commit",
		Args:  cobra.ExactArgs(1),
		RunE:  a.runEnrich,
	}
}

func (a *app) runEnrich(cmd *cobra.Command, args []string) error {
	path := args[0]
	ctx, span := a.tracer().Start(cmd.Context(), "sopreg.enrich")
	defer span.End()

	doc, err := store.Load(path)
	if err != nil {
		return err
	}

	source := a.source()
	desc, aerr := core.NewAdmitter(source, source, a.coreOptions()...).AdmitLast(ctx, doc)
	if aerr != nil {
		return a.finishCheck(newCheckReport("enrich", path, aerr), aerr)
	}

	out, err := core.EnrichLast(doc, desc)
	if err != nil {
		return err
	}
	if err := store.Save(path, out); err != nil {
		return err
	}

	message := core.EnrichCommitMessage(desc)
	if err := a.publish(ctx, path, message); err != nil {
		return err
	}
	a.logger.Info("registry updated", "path", path, "message", message)

	report := newCheckReport("enrich", path, nil)
	report.Package = desc.Name()
	report.Committed = !a.noCommit
	return a.finishCheck(report, nil)
}

// finishCheck writes the report and turns a rejection into exit status 1.
func (a *app) finishCheck(report checkReport, rejection error) error {
	format, _ := parseOutput(a.output)
	if err := writeReport(a.stdout, format, report, report.writeText); err != nil {
		return err
	}
	if rejection != nil {
		if report.Detail != "" {
			a.logger.Error("modified package", "diff", report.Detail)
		}
		return &ExitError{Code: 1, Err: fmt.Errorf("%s rejected: %w", report.Command, rejection)}
	}
	return nil
}
