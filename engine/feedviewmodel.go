package engine

import (
	"fmt"
	"reflect"
	"sync"
	"time"

	"playbyte/bytestore"
	"playbyte/core"
	"playbyte/interfaces"
	"playbyte/system"
)

// ByteItem is one Byte as the feed shows it.
type ByteItem struct {
	ID        string        `json:"id"`
	Title     string        `json:"title"`
	System    system.System `json:"system"`
	Tags      []string      `json:"tags"`
	CreatedAt time.Time     `json:"createdAt"`
	Region    string        `json:"region,omitempty"`
	CoreID    string        `json:"coreId,omitempty"`
	Author    string        `json:"author,omitempty"`
	Thumbnail string        `json:"thumbnail"`
}

// FeedView is the JSON form of the feed.
type FeedView struct {
	Bytes []ByteItem `json:"bytes"`
	// Broken lists containers that failed to read.
	Broken  []string `json:"broken"`
	Current string   `json:"current"`
	Session string   `json:"session"`
	Frame   uint64   `json:"frame"`
}

type FeedViewModel struct {
	commands map[string]interfaces.Command

	root *ViewModel

	mu      sync.Mutex
	isDirty bool
	view    FeedView
	session core.SessionID
}

func NewFeedViewModel(root *ViewModel) *FeedViewModel {
	v := &FeedViewModel{root: root}

	v.commands = map[string]interfaces.Command{
		"select": &feedSelectCmd{v},
		"create": &feedCreateCmd{v},
		"step":   &feedStepCmd{v},
		"rename": &feedRenameCmd{v},
		"retag":  &feedRetagCmd{v},
		"delete": &feedDeleteCmd{v},
	}

	return v
}

// ThumbnailURL is where the feed server serves a Byte's thumbnail.
func ThumbnailURL(id string) string { return "/thumbnails/" + id + ".png" }

func (v *FeedViewModel) Update() {
	e := v.root.e

	next := FeedView{Bytes: []ByteItem{}, Broken: []string{}}
	for m, err := range e.Store.List(v.root.ctx) {
		if err != nil {
			next.Broken = append(next.Broken, err.Error())
			continue
		}
		next.Bytes = append(next.Bytes, byteItem(m))
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	next.Current = v.view.Current
	if v.session != 0 {
		if info, err := e.Bridge.Info(v.session); err == nil {
			next.Session = v.session.String()
			next.Frame = info.Frames
		} else {
			v.session = 0
		}
	}
	if !reflect.DeepEqual(v.view, next) {
		v.view = next
		v.isDirty = true
	}
}

func byteItem(m bytestore.Metadata) ByteItem {
	return ByteItem{
		ID:        m.ID,
		Title:     m.Title,
		System:    m.System,
		Tags:      m.Tags,
		CreatedAt: m.CreatedAt,
		Region:    m.Region,
		CoreID:    m.CoreID,
		Author:    m.Author,
		Thumbnail: ThumbnailURL(m.ID),
	}
}

// ViewModel returns a copy safe to marshal while commands run.
func (v *FeedViewModel) ViewModel() interface{} {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.view
}

func (v *FeedViewModel) IsDirty() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.isDirty
}

func (v *FeedViewModel) ClearDirty() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.isDirty = false
}

func (v *FeedViewModel) MarkDirty() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.isDirty = true
}

// Session is the session playing in the feed slot, if any.
func (v *FeedViewModel) Session() core.SessionID {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.session
}

func (v *FeedViewModel) setSession(id core.SessionID, current string) {
	v.mu.Lock()
	v.session = id
	v.view.Current = current
	v.isDirty = true
	v.mu.Unlock()
}

func (v *FeedViewModel) CommandFor(command string) (interfaces.Command, error) {
	return commandFor(v.commands, command)
}

// Select resumes a Byte in the feed slot and warms the ones after it.
func (v *FeedViewModel) Select(id string) error {
	vm := v.root
	defer vm.UpdateAndNotifyView()

	m, r, sid, err := vm.e.LoadByteInSlot(vm.ctx, FeedSlot, id)
	if err != nil {
		return vm.fail("load byte", err)
	}
	v.setSession(sid, m.ID)
	vm.setStatus(fmt.Sprintf("Playing %s from %s", m.Title, r.Path))

	if n := vm.e.PrefetchAhead; n > 0 {
		vm.e.Store.PrefetchAsync(vm.ctx, vm.e.Store.Neighbours(id, n)...)
	}
	return nil
}

// Create captures the feed slot's session as a new Byte.
func (v *FeedViewModel) Create(name string) error {
	vm := v.root
	defer vm.UpdateAndNotifyView()

	sid, ok := vm.e.Bridge.SlotSession(FeedSlot)
	if !ok {
		return vm.fail("create byte", fmt.Errorf("nothing is playing"))
	}
	m, err := vm.e.CreateByte(vm.ctx, sid, name)
	if err != nil {
		return vm.fail("create byte", err)
	}
	v.setSession(sid, m.ID)
	vm.setStatus(fmt.Sprintf("Saved Byte %s", m.Title))
	return nil
}

// Step advances the feed slot's session.
func (v *FeedViewModel) Step(frames int, input core.Input) error {
	vm := v.root
	defer vm.UpdateAndNotifyView()

	sid, ok := vm.e.Bridge.SlotSession(FeedSlot)
	if !ok {
		return fmt.Errorf("nothing is playing")
	}
	for i := 0; i < max(frames, 1); i++ {
		if _, err := vm.e.Bridge.Step(sid, input); err != nil {
			v.setSession(0, "")
			return vm.fail("step", err)
		}
	}
	return nil
}

// Commands:

type feedSelectCmd struct{ v *FeedViewModel }
type feedIDArgs struct {
	ID string `json:"id"`
}

func (c *feedSelectCmd) CreateArgs() interfaces.CommandArgs { return &feedIDArgs{} }
func (c *feedSelectCmd) Execute(args interfaces.CommandArgs) error {
	f, ok := args.(*feedIDArgs)
	if !ok {
		return fmt.Errorf("invalid args type for command")
	}
	return c.v.Select(f.ID)
}

type feedCreateCmd struct{ v *FeedViewModel }
type feedCreateArgs struct {
	Name string `json:"name"`
}

func (c *feedCreateCmd) CreateArgs() interfaces.CommandArgs { return &feedCreateArgs{} }
func (c *feedCreateCmd) Execute(args interfaces.CommandArgs) error {
	f, ok := args.(*feedCreateArgs)
	if !ok {
		return fmt.Errorf("invalid args type for command")
	}
	return c.v.Create(f.Name)
}

type feedStepCmd struct{ v *FeedViewModel }
type feedStepArgs struct {
	Frames int                         `json:"frames"`
	Pads   [core.MaxPorts]core.Buttons `json:"pads"`
}

func (c *feedStepCmd) CreateArgs() interfaces.CommandArgs { return &feedStepArgs{} }
func (c *feedStepCmd) Execute(args interfaces.CommandArgs) error {
	f, ok := args.(*feedStepArgs)
	if !ok {
		return fmt.Errorf("invalid args type for command")
	}
	return c.v.Step(f.Frames, core.Input{Pads: f.Pads})
}

type feedRenameCmd struct{ v *FeedViewModel }
type feedRenameArgs struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

func (c *feedRenameCmd) CreateArgs() interfaces.CommandArgs { return &feedRenameArgs{} }
func (c *feedRenameCmd) Execute(args interfaces.CommandArgs) error {
	f, ok := args.(*feedRenameArgs)
	if !ok {
		return fmt.Errorf("invalid args type for command")
	}
	vm := c.v.root
	defer vm.UpdateAndNotifyView()
	if _, err := vm.e.Store.Rename(f.ID, f.Title); err != nil {
		return vm.fail("rename", err)
	}
	return nil
}

type feedRetagCmd struct{ v *FeedViewModel }
type feedRetagArgs struct {
	ID   string   `json:"id"`
	Tags []string `json:"tags"`
}

func (c *feedRetagCmd) CreateArgs() interfaces.CommandArgs { return &feedRetagArgs{} }
func (c *feedRetagCmd) Execute(args interfaces.CommandArgs) error {
	f, ok := args.(*feedRetagArgs)
	if !ok {
		return fmt.Errorf("invalid args type for command")
	}
	vm := c.v.root
	defer vm.UpdateAndNotifyView()
	if _, err := vm.e.Store.Retag(f.ID, f.Tags); err != nil {
		return vm.fail("retag", err)
	}
	return nil
}

type feedDeleteCmd struct{ v *FeedViewModel }

func (c *feedDeleteCmd) CreateArgs() interfaces.CommandArgs { return &feedIDArgs{} }
func (c *feedDeleteCmd) Execute(args interfaces.CommandArgs) error {
	f, ok := args.(*feedIDArgs)
	if !ok {
		return fmt.Errorf("invalid args type for command")
	}
	vm := c.v.root
	defer vm.UpdateAndNotifyView()
	if err := vm.e.Store.Delete(f.ID); err != nil {
		return vm.fail("delete", err)
	}

	v := c.v
	v.mu.Lock()
	if v.view.Current == f.ID {
		v.view.Current = ""
	}
	v.mu.Unlock()
	vm.setStatus("Byte deleted")
	return nil
}
