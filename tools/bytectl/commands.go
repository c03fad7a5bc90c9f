package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/zeebo/xxh3"

	"playbyte/core"
	"playbyte/engine"
	"playbyte/system"
)

func table(out io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
}

func subFlags(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "usage: bytectl %s\n", usages[name])
		fs.PrintDefaults()
	}
	return fs
}

func runScan(ctx context.Context, env *env, args []string) error {
	report, err := env.e.Library.Refresh(ctx)
	if err != nil {
		return err
	}

	w := table(env.out)
	fmt.Fprintln(w, "SYSTEM\tSHA1\tMATCH\tTITLE\tPATH")
	for _, rec := range env.e.Library.Records() {
		res := env.e.Matcher.Resolve(rec)
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", rec.System, rec.SHA1, res.Kind, res.Title, rec.Path)
	}
	if err = w.Flush(); err != nil {
		return err
	}

	fmt.Fprintf(env.out, "\n%d seen, %d hashed, %d skipped\n", report.Seen, report.Hashed, report.Skipped)
	for _, err := range report.Errors {
		fmt.Fprintf(env.out, "error: %v\n", err)
	}
	if err := env.e.Matcher.Degraded(); err != nil {
		fmt.Fprintf(env.out, "warning: %v\n", err)
	}
	return nil
}

func runResolve(ctx context.Context, env *env, args []string) error {
	if len(args) == 0 {
		return errors.New("resolve: no ROM paths given")
	}
	w := table(env.out)
	for _, p := range args {
		abs, err := filepath.Abs(p)
		if err != nil {
			return err
		}
		r, err := env.e.Identify(ctx, abs)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%s\t%s\t%.3f\t%s\n", r.Path, r.Match.Kind, r.Match.Confidence, r.Match.Title)
		if c := r.Match.Candidate; c != nil {
			fmt.Fprintf(w, "\tdatabase %s\t\t%s\n", r.Match.Database, c.Title)
		}
	}
	return w.Flush()
}

func runList(ctx context.Context, env *env, args []string) error {
	w := table(env.out)
	fmt.Fprintln(w, "ID\tCREATED\tSYSTEM\tTITLE\tTAGS")
	broken := 0
	for m, err := range env.e.Store.List(ctx) {
		if err != nil {
			broken++
			env.log.WithError(err).Warn("unreadable byte")
			continue
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", m.ID, m.CreatedAt.Local().Format(time.DateTime), m.System, m.Title, strings.Join(m.Tags, ","))
	}
	if err := w.Flush(); err != nil {
		return err
	}
	if broken > 0 {
		fmt.Fprintf(env.out, "%d unreadable; run bytectl reconcile\n", broken)
	}
	return nil
}

func runCores(ctx context.Context, env *env, args []string) error {
	w := table(env.out)
	fmt.Fprintln(w, "ID\tSYSTEM\tVERSION\tSTATES\tDETERMINISTIC\tPROBLEM")
	for _, sys := range system.All {
		for _, d := range env.e.Bridge.Cores(sys) {
			fmt.Fprintf(w, "%s\t%s\t%s\t%t\t%t\t%s\n", d.ID, d.System, d.Version, d.Capabilities.CanSerialize, d.Capabilities.Deterministic, d.Problem)
		}
	}
	return w.Flush()
}

// hold runs frames frames of input on id and returns the last one.
func hold(b *core.Bridge, id core.SessionID, frames int, input core.Input) (core.FrameOutput, error) {
	var out core.FrameOutput
	var err error
	for i := 0; i < frames; i++ {
		if out, err = b.Step(id, input); err != nil {
			return out, err
		}
	}
	return out, nil
}

func frameDigest(f core.FrameOutput) string {
	return fmt.Sprintf("%016x", xxh3.Hash(f.Pixels))
}

func runCreate(ctx context.Context, env *env, args []string) error {
	fs := subFlags("create")
	frames := fs.Int("frames", 60, "frames to run before saving")
	buttons := fs.String("hold", "", "buttons held on port 1, e.g. a+right")
	name := fs.String("name", "", "title for the Byte (default: the resolved ROM title)")
	coreID := fs.String("core", "", "core id (default: chosen for the ROM's system)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return errors.New("create: one ROM path required")
	}
	pad, err := core.ParseButtons(*buttons)
	if err != nil {
		return err
	}
	romPath, err := filepath.Abs(fs.Arg(0))
	if err != nil {
		return err
	}

	var sid core.SessionID
	if *coreID != "" {
		desc, ok := env.e.Bridge.Descriptor(*coreID)
		if !ok {
			return fmt.Errorf("create: no core %q", *coreID)
		}
		sid, err = env.e.Bridge.StartInSlot(ctx, engine.FeedSlot, desc, romPath)
	} else {
		sid, _, err = env.e.PlayInSlot(ctx, engine.FeedSlot, romPath)
	}
	if err != nil {
		return err
	}
	defer env.e.Bridge.Stop(sid)

	if _, err = hold(env.e.Bridge, sid, *frames, core.Input{Pads: [core.MaxPorts]core.Buttons{pad}}); err != nil {
		return err
	}
	m, err := env.e.CreateByte(ctx, sid, *name)
	if err != nil {
		return err
	}
	fmt.Fprintf(env.out, "%s\t%s\n", m.ID, m.Title)
	return nil
}

func runLoad(ctx context.Context, env *env, args []string) error {
	fs := subFlags("load")
	frames := fs.Int("frames", 60, "frames to run after resuming")
	buttons := fs.String("hold", "", "buttons held on port 1, e.g. a+right")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return errors.New("load: one Byte id required")
	}
	pad, err := core.ParseButtons(*buttons)
	if err != nil {
		return err
	}

	m, r, sid, err := env.e.LoadByte(ctx, fs.Arg(0))
	if err != nil {
		return err
	}
	defer env.e.Bridge.Stop(sid)

	info, err := env.e.Bridge.Info(sid)
	if err != nil {
		return err
	}
	out, err := hold(env.e.Bridge, sid, *frames, core.Input{Pads: [core.MaxPorts]core.Buttons{pad}})
	if err != nil {
		return err
	}

	w := table(env.out)
	fmt.Fprintf(w, "byte\t%s\t%s\n", m.ID, m.Title)
	fmt.Fprintf(w, "rom\t%s\t%s\n", r.Path, r.Match)
	fmt.Fprintf(w, "core\t%s\t%s\n", info.Descriptor.ID, info.Descriptor.Version)
	fmt.Fprintf(w, "frame\t%d\t%s\n", out.Frame, frameDigest(out))
	return w.Flush()
}

func runRename(ctx context.Context, env *env, args []string) error {
	if len(args) != 2 {
		return errors.New("rename: ID and TITLE required")
	}
	m, err := env.e.Store.Rename(args[0], args[1])
	if err != nil {
		return err
	}
	fmt.Fprintf(env.out, "%s\t%s\n", m.ID, m.Title)
	return nil
}

func runDelete(ctx context.Context, env *env, args []string) error {
	if len(args) == 0 {
		return errors.New("delete: no Byte ids given")
	}
	var errs []error
	for _, id := range args {
		errs = append(errs, env.e.Store.Delete(id))
	}
	return errors.Join(errs...)
}

func runOverride(ctx context.Context, env *env, args []string) error {
	fs := subFlags("override")
	remove := fs.Bool("clear", false, "remove the override instead of setting it")
	if err := fs.Parse(args); err != nil {
		return err
	}

	switch {
	case *remove && fs.NArg() == 1:
		return env.e.Matcher.ClearOverride(fs.Arg(0))
	case !*remove && fs.NArg() == 2:
		return env.e.Matcher.SetOverride(fs.Arg(0), fs.Arg(1))
	case fs.NArg() == 0 && !*remove:
		w := table(env.out)
		for _, o := range env.e.Matcher.Overrides() {
			fmt.Fprintf(w, "%s\t%s\t%s\n", o.Hash, o.Title, o.SetAt.Local().Format(time.DateTime))
		}
		return w.Flush()
	default:
		fs.Usage()
		return errors.New("override: wrong number of arguments")
	}
}

func runReconcile(ctx context.Context, env *env, args []string) error {
	report, err := env.e.Store.Reconcile(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(env.out, "%d bytes\n", report.Bytes)
	for _, ce := range report.Corrupt {
		fmt.Fprintf(env.out, "corrupt: %v\n", ce)
	}
	for _, p := range report.Purged {
		fmt.Fprintf(env.out, "purged: %s\n", p)
	}
	return nil
}
