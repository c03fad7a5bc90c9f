package engine

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"playbyte/core/refsnes"
	"playbyte/util"
)

type recordingNotifier struct {
	mu    sync.Mutex
	views map[string]interface{}
}

func (n *recordingNotifier) NotifyView(view string, viewModel interface{}) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.views == nil {
		n.views = make(map[string]interface{})
	}
	n.views[view] = viewModel
}

func (n *recordingNotifier) get(view string) interface{} {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.views[view]
}

func execute(t *testing.T, vm *ViewModel, view, command, args string) error {
	t.Helper()
	ce, err := vm.CommandFor(view, command)
	require.NoError(t, err)
	a := ce.CreateArgs()
	if a != nil {
		require.NoError(t, json.Unmarshal([]byte(args), a))
	}
	return ce.Execute(a)
}

func TestViewModel_FeedLifecycle(t *testing.T) {
	f := newFixture(t, nil)
	path := f.writeROM(t, "mario.sfc", refsnes.BuildROM("SUPER MARIOWORLD", 0x01, 0))

	vm := NewViewModel(context.Background(), util.NewTestingLogger(t), f.e)
	n := &recordingNotifier{}
	vm.ProvideViewNotifier(n)
	vm.Init()
	vm.UpdateAndNotifyView()

	feed := n.get("feed").(FeedView)
	assert.Empty(t, feed.Bytes)

	// scan and play the rom in the feed slot:
	require.NoError(t, execute(t, vm, "library", "rescan", ``))
	lib := n.get("library").(LibraryView)
	require.Len(t, lib.Roms, 1)
	assert.Equal(t, "mario", lib.Roms[0].Title)

	require.NoError(t, execute(t, vm, "library", "play", `{"path":`+jsonString(path)+`}`))
	require.NotZero(t, vm.Feed().Session())

	require.NoError(t, execute(t, vm, "feed", "step", `{"frames":5,"pads":[1,0]}`))
	assert.Equal(t, uint64(5), n.get("feed").(FeedView).Frame)

	require.NoError(t, execute(t, vm, "feed", "create", `{"name":"first"}`))
	feed = n.get("feed").(FeedView)
	require.Len(t, feed.Bytes, 1)
	id := feed.Bytes[0].ID
	assert.Equal(t, "first", feed.Bytes[0].Title)
	assert.Equal(t, ThumbnailURL(id), feed.Bytes[0].Thumbnail)
	assert.Equal(t, id, feed.Current)

	require.NoError(t, execute(t, vm, "feed", "rename", `{"id":"`+id+`","title":"renamed"}`))
	require.NoError(t, execute(t, vm, "feed", "retag", `{"id":"`+id+`","tags":["b","a"]}`))
	feed = n.get("feed").(FeedView)
	assert.Equal(t, "renamed", feed.Bytes[0].Title)
	assert.Equal(t, []string{"a", "b"}, feed.Bytes[0].Tags)

	require.NoError(t, execute(t, vm, "feed", "select", `{"id":"`+id+`"}`))
	assert.Contains(t, vm.Status(), "Playing renamed")

	require.NoError(t, execute(t, vm, "feed", "delete", `{"id":"`+id+`"}`))
	feed = n.get("feed").(FeedView)
	assert.Empty(t, feed.Bytes)
	assert.Empty(t, feed.Current)
}

func TestViewModel_OverrideInvalidatesLibrary(t *testing.T) {
	f := newFixture(t, nil)
	f.writeROM(t, "mario.sfc", refsnes.BuildROM("SUPER MARIOWORLD", 0x01, 0))

	vm := NewViewModel(context.Background(), util.NewTestingLogger(t), f.e)
	n := &recordingNotifier{}
	vm.ProvideViewNotifier(n)
	require.NoError(t, execute(t, vm, "library", "rescan", ``))

	hash := n.get("library").(LibraryView).Roms[0].SHA1
	require.NoError(t, execute(t, vm, "library", "override", `{"hash":"`+hash+`","title":"My Mario"}`))
	lib := n.get("library").(LibraryView)
	assert.Equal(t, "My Mario", lib.Roms[0].Title)
	require.Len(t, lib.Overrides, 1)

	require.NoError(t, execute(t, vm, "library", "clearOverride", `{"hash":"`+hash+`"}`))
	assert.Equal(t, "mario", n.get("library").(LibraryView).Roms[0].Title)
}

func TestViewModel_CommandErrors(t *testing.T) {
	f := newFixture(t, nil)
	vm := NewViewModel(context.Background(), util.NewTestingLogger(t), f.e)

	_, err := vm.CommandFor("nope", "select")
	assert.Error(t, err)
	_, err = vm.CommandFor("status", "select")
	assert.Error(t, err)
	_, err = vm.CommandFor("feed", "nope")
	assert.Error(t, err)

	// failures surface on the status line:
	err = execute(t, vm, "feed", "create", `{}`)
	assert.Error(t, err)
	assert.Contains(t, vm.Status(), "create byte failed")

	err = execute(t, vm, "feed", "select", `{"id":"missing"}`)
	assert.Error(t, err)
	assert.Contains(t, vm.Status(), "load byte failed")
}

func TestViewModel_NotifyViewToSendsEverything(t *testing.T) {
	f := newFixture(t, nil)
	vm := NewViewModel(context.Background(), util.NewTestingLogger(t), f.e)
	vm.Update()

	n := &recordingNotifier{}
	vm.NotifyViewTo(n)
	assert.Equal(t, "Ready", n.get("status"))
	assert.IsType(t, FeedView{}, n.get("feed"))
	assert.IsType(t, LibraryView{}, n.get("library"))
}

func jsonString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}
