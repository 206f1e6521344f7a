package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/doclex/doclex/internal/config"
	"github.com/doclex/doclex/internal/indexstore"
	"github.com/doclex/doclex/internal/ui"
)

// newDoctorCmd creates the doctor command: startup diagnostics.
func newDoctorCmd() *cobra.Command {
	var noColor bool

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Diagnose index directory, lock, and schema problems",
		Long: `Check the conditions 'doclex serve' needs at startup: a loadable
configuration, a writable index directory, a parseable schema.version
matching this binary, and no live lock holder.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDoctor(cmd.OutOrStdout(), noColor)
		},
	}
	cmd.Flags().BoolVar(&noColor, "no-color", false, "Disable colored output")
	return cmd
}

type doctorCheck struct {
	name string
	ok   bool
	note string
}

func runDoctor(out io.Writer, noColor bool) error {
	styles := ui.GetStyles(noColor)
	var checks []doctorCheck
	failed := false

	cfg, err := loadConfig()
	if err != nil {
		checks = append(checks, doctorCheck{name: "configuration", ok: false, note: err.Error()})
		printChecks(out, styles, checks)
		return err
	}
	checks = append(checks, doctorCheck{name: "configuration", ok: true, note: config.GetUserConfigPath()})

	if err := indexstore.CheckWritable(cfg.Index.Path); err != nil {
		checks = append(checks, doctorCheck{name: "index directory writable", ok: false, note: err.Error()})
		failed = true
	} else {
		checks = append(checks, doctorCheck{name: "index directory writable", ok: true, note: cfg.Index.Path})
	}

	schema, err := indexstore.InspectSchema(cfg.Index.Path)
	switch {
	case err != nil:
		checks = append(checks, doctorCheck{name: "schema.version", ok: false, note: err.Error()})
		failed = true
	case !schema.Present:
		checks = append(checks, doctorCheck{name: "schema.version", ok: true, note: "absent (will be created on first open)"})
	case schema.Matches:
		checks = append(checks, doctorCheck{name: "schema.version", ok: true, note: fmt.Sprintf("version %d", schema.Version)})
	default:
		checks = append(checks, doctorCheck{
			name: "schema.version",
			ok:   false,
			note: fmt.Sprintf("index has version %d, binary expects %d; set index.schema-mismatch-action: reindex to rebuild", schema.Version, indexstore.SchemaVersion),
		})
		failed = true
	}

	lock, err := indexstore.InspectLock(cfg.Index.Path)
	switch {
	case err != nil:
		checks = append(checks, doctorCheck{name: "index lock", ok: false, note: err.Error()})
		failed = true
	case !lock.Present:
		checks = append(checks, doctorCheck{name: "index lock", ok: true, note: "not held"})
	case lock.OwnerLive:
		checks = append(checks, doctorCheck{name: "index lock", ok: false, note: fmt.Sprintf("held by live process %d", lock.OwnerPID)})
		failed = true
	default:
		checks = append(checks, doctorCheck{name: "index lock", ok: true, note: fmt.Sprintf("stale (pid %d not running); will be recovered on next open", lock.OwnerPID)})
	}

	printChecks(out, styles, checks)
	if failed {
		return fmt.Errorf("doctor found problems")
	}
	fmt.Fprintln(out, "\nAll checks passed.")
	return nil
}

func printChecks(out io.Writer, styles ui.Styles, checks []doctorCheck) {
	for _, c := range checks {
		mark := styles.Success.Render("ok")
		if !c.ok {
			mark = styles.Error.Render("FAIL")
		}
		fmt.Fprintf(out, "  [%s] %-28s %s\n", mark, c.name, c.note)
	}
}
