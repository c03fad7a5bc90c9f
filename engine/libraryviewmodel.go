package engine

import (
	"fmt"
	"path/filepath"
	"sync"

	"playbyte/interfaces"
	"playbyte/match"
	"playbyte/rom"
	"playbyte/system"
)

// RomItem is one ROM file with its resolved title.
type RomItem struct {
	Path       string        `json:"path"`
	Name       string        `json:"name"`
	System     system.System `json:"system"`
	SHA1       string        `json:"sha1"`
	Title      string        `json:"title"`
	Kind       match.Kind    `json:"kind"`
	Confidence float64       `json:"confidence"`
}

// LibraryView is the JSON form of the ROM library.
type LibraryView struct {
	Roms      []RomItem            `json:"roms"`
	Databases []match.DatabaseInfo `json:"databases"`
	Overrides []match.Override     `json:"overrides"`
	Degraded  string               `json:"degraded,omitempty"`
	Scanning  bool                 `json:"scanning"`
	LastScan  ScanSummary          `json:"lastScan"`
}

type ScanSummary struct {
	Seen    int      `json:"seen"`
	Hashed  int      `json:"hashed"`
	Skipped int      `json:"skipped"`
	Errors  []string `json:"errors"`
}

func summarize(r rom.ScanReport) ScanSummary {
	s := ScanSummary{Seen: r.Seen, Hashed: r.Hashed, Skipped: r.Skipped, Errors: []string{}}
	for _, err := range r.Errors {
		s.Errors = append(s.Errors, err.Error())
	}
	return s
}

type LibraryViewModel struct {
	commands map[string]interfaces.Command

	root *ViewModel

	mu      sync.Mutex
	isDirty bool
	stale   bool
	view    LibraryView
}

func NewLibraryViewModel(root *ViewModel) *LibraryViewModel {
	v := &LibraryViewModel{root: root, stale: true}

	v.commands = map[string]interfaces.Command{
		"rescan":        &libraryRescanCmd{v},
		"override":      &libraryOverrideCmd{v},
		"clearOverride": &libraryClearOverrideCmd{v},
		"play":          &libraryPlayCmd{v},
	}

	return v
}

// Invalidate makes the next Update re-resolve every ROM.
func (v *LibraryViewModel) Invalidate() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.stale = true
}

// Update re-resolves the library only after Invalidate.
func (v *LibraryViewModel) Update() {
	v.mu.Lock()
	stale := v.stale
	v.stale = false
	v.mu.Unlock()
	if !stale {
		return
	}

	e := v.root.e
	roms := []RomItem{}
	for _, rec := range e.Library.Records() {
		res := e.Matcher.Resolve(rec)
		roms = append(roms, RomItem{
			Path:       rec.Path,
			Name:       filepath.Base(rec.Path),
			System:     rec.System,
			SHA1:       rec.SHA1,
			Title:      res.Title,
			Kind:       res.Kind,
			Confidence: res.Confidence,
		})
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	v.view.Roms = roms
	v.view.Databases = e.Matcher.Databases()
	v.view.Overrides = e.Matcher.Overrides()
	v.view.Degraded = ""
	if err := e.Matcher.Degraded(); err != nil {
		v.view.Degraded = err.Error()
	}
	v.isDirty = true
}

func (v *LibraryViewModel) ViewModel() interface{} {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.view
}

func (v *LibraryViewModel) IsDirty() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.isDirty
}

func (v *LibraryViewModel) ClearDirty() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.isDirty = false
}

func (v *LibraryViewModel) MarkDirty() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.isDirty = true
}

func (v *LibraryViewModel) CommandFor(command string) (interfaces.Command, error) {
	return commandFor(v.commands, command)
}

func (v *LibraryViewModel) setScanning(scanning bool) {
	v.mu.Lock()
	v.view.Scanning = scanning
	v.isDirty = true
	v.mu.Unlock()
}

// Rescan refreshes the library from the ROM roots.
func (v *LibraryViewModel) Rescan() error {
	vm := v.root
	v.setScanning(true)
	vm.NotifyViewOf("library", v)

	report, err := vm.e.Library.Refresh(vm.ctx)

	v.mu.Lock()
	v.view.Scanning = false
	v.view.LastScan = summarize(report)
	v.stale = true
	v.mu.Unlock()
	vm.UpdateAndNotifyView()

	if err != nil {
		return vm.fail("rescan", err)
	}
	vm.setStatus(fmt.Sprintf("Found %d ROMs", report.Hashed))
	return nil
}

// Commands:

type libraryRescanCmd struct{ v *LibraryViewModel }

func (c *libraryRescanCmd) CreateArgs() interfaces.CommandArgs     { return nil }
func (c *libraryRescanCmd) Execute(_ interfaces.CommandArgs) error { return c.v.Rescan() }

type libraryOverrideCmd struct{ v *LibraryViewModel }
type libraryOverrideArgs struct {
	Hash  string `json:"hash"`
	Title string `json:"title"`
}

func (c *libraryOverrideCmd) CreateArgs() interfaces.CommandArgs { return &libraryOverrideArgs{} }
func (c *libraryOverrideCmd) Execute(args interfaces.CommandArgs) error {
	f, ok := args.(*libraryOverrideArgs)
	if !ok {
		return fmt.Errorf("invalid args type for command")
	}
	vm := c.v.root
	defer vm.UpdateAndNotifyView()
	if err := vm.e.Matcher.SetOverride(f.Hash, f.Title); err != nil {
		return vm.fail("override", err)
	}
	c.v.Invalidate()
	return nil
}

type libraryClearOverrideCmd struct{ v *LibraryViewModel }
type libraryHashArgs struct {
	Hash string `json:"hash"`
}

func (c *libraryClearOverrideCmd) CreateArgs() interfaces.CommandArgs { return &libraryHashArgs{} }
func (c *libraryClearOverrideCmd) Execute(args interfaces.CommandArgs) error {
	f, ok := args.(*libraryHashArgs)
	if !ok {
		return fmt.Errorf("invalid args type for command")
	}
	vm := c.v.root
	defer vm.UpdateAndNotifyView()
	if err := vm.e.Matcher.ClearOverride(f.Hash); err != nil {
		return vm.fail("clear override", err)
	}
	c.v.Invalidate()
	return nil
}

type libraryPlayCmd struct{ v *LibraryViewModel }
type libraryPlayArgs struct {
	Path string `json:"path"`
}

func (c *libraryPlayCmd) CreateArgs() interfaces.CommandArgs { return &libraryPlayArgs{} }
func (c *libraryPlayCmd) Execute(args interfaces.CommandArgs) error {
	f, ok := args.(*libraryPlayArgs)
	if !ok {
		return fmt.Errorf("invalid args type for command")
	}
	vm := c.v.root
	defer vm.UpdateAndNotifyView()

	sid, r, err := vm.e.PlayInSlot(vm.ctx, FeedSlot, f.Path)
	if err != nil {
		return vm.fail("play", err)
	}
	vm.feed.setSession(sid, "")
	vm.setStatus(fmt.Sprintf("Playing %s", r.Match.Title))
	return nil
}
