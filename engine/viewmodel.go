package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"playbyte/interfaces"
	"playbyte/util"
)

// FeedSlot is the feed slot driven by the view.
const FeedSlot = 0

// ViewModel is the root view model: it owns the named child view models the
// feed view binds to and routes view commands to them.
type ViewModel struct {
	ctx context.Context
	log *logrus.Entry
	e   *Engine

	// dependency that notifies view of updated view model:
	viewNotifier interfaces.ViewNotifier

	// View Models:
	viewModels     map[string]interface{}
	viewModelsLock sync.Mutex

	feed    *FeedViewModel
	library *LibraryViewModel
}

// NewViewModel binds view models to e. ctx bounds the work commands start.
func NewViewModel(ctx context.Context, log *logrus.Entry, e *Engine) *ViewModel {
	vm := &ViewModel{
		ctx: ctx,
		log: util.Component(log, "viewmodel"),
		e:   e,
	}

	vm.feed = NewFeedViewModel(vm)
	vm.library = NewLibraryViewModel(vm)

	// assign unique names to each view for easy binding with html/js UI:
	vm.viewModels = map[string]interface{}{
		"status":  "Ready",
		"feed":    vm.feed,
		"library": vm.library,
	}

	return vm
}

func (vm *ViewModel) Feed() *FeedViewModel       { return vm.feed }
func (vm *ViewModel) Library() *LibraryViewModel { return vm.library }

func (vm *ViewModel) GetViewModel(view string) (interface{}, bool) {
	defer vm.viewModelsLock.Unlock()
	vm.viewModelsLock.Lock()

	viewModel, ok := vm.viewModels[view]
	return viewModel, ok
}

func (vm *ViewModel) NotifyView(view string, model interface{}) {
	defer vm.viewModelsLock.Unlock()
	vm.viewModelsLock.Lock()

	// allow model to customize the instance to be stored as a view model:
	viewModel := model
	if viewModeler, ok := model.(interfaces.ViewModeler); ok {
		viewModel = viewModeler.ViewModel()
	}

	// keep child view models addressable; only plain values are replaced:
	if _, isChild := vm.viewModels[view].(interfaces.ViewModelCommandHandler); !isChild {
		vm.viewModels[view] = viewModel
	}

	vn := vm.viewNotifier
	if vn == nil {
		return
	}
	vn.NotifyView(view, viewModel)
}

// Init initializes all view models.
func (vm *ViewModel) Init() {
	for _, model := range vm.snapshot() {
		if i, ok := model.(interfaces.Initializable); ok {
			i.Init()
		}
	}
}

// Update updates all view models.
func (vm *ViewModel) Update() {
	for _, model := range vm.snapshot() {
		if i, ok := model.(interfaces.Updateable); ok {
			i.Update()
		}
	}
}

func (vm *ViewModel) NotifyViewTo(viewNotifier interfaces.ViewNotifier) {
	if viewNotifier == nil {
		return
	}

	// send all view models to this notifier regardless of dirty state:
	for view, model := range vm.snapshot() {
		if viewModeler, ok := model.(interfaces.ViewModeler); ok {
			model = viewModeler.ViewModel()
		}
		viewNotifier.NotifyView(view, model)
	}
}

// UpdateAndNotifyView updates all view models and notifies the view of the dirty ones.
func (vm *ViewModel) UpdateAndNotifyView() {
	for view, model := range vm.snapshot() {
		if i, ok := model.(interfaces.Updateable); ok {
			i.Update()
		}
		vm.NotifyViewOf(view, model)
	}
}

func (vm *ViewModel) NotifyViewOf(view string, model interface{}) {
	dirtyable, isDirtyable := model.(interfaces.Dirtyable)
	if isDirtyable && !dirtyable.IsDirty() {
		return
	}

	vm.NotifyView(view, model)

	if isDirtyable {
		dirtyable.ClearDirty()
	}
}

// CommandFor implements ViewCommandHandler.
func (vm *ViewModel) CommandFor(view, command string) (ce interfaces.Command, err error) {
	svm, ok := vm.GetViewModel(view)
	if !ok {
		return nil, fmt.Errorf("view=%s,cmd=%s: no view model found to handle command", view, command)
	}

	commandHandler, ok := svm.(interfaces.ViewModelCommandHandler)
	if !ok {
		return nil, fmt.Errorf("view=%s,cmd=%s: view model does not handle commands", view, command)
	}

	ce, err = commandHandler.CommandFor(command)
	if err != nil {
		err = fmt.Errorf("view=%s,cmd=%s: error from command handler: %w", view, command, err)
	}
	return
}

func (vm *ViewModel) ProvideViewNotifier(viewNotifier interfaces.ViewNotifier) {
	vm.viewNotifier = viewNotifier
}

// Status is the last status line shown to the user.
func (vm *ViewModel) Status() string {
	s, _ := vm.GetViewModel("status")
	msg, _ := s.(string)
	return msg
}

func (vm *ViewModel) setStatus(msg string) {
	vm.log.WithField("status", msg).Info("notify")
	vm.NotifyView("status", msg)
}

// fail reports err on the status line and returns it to the command caller.
func (vm *ViewModel) fail(action string, err error) error {
	vm.log.WithError(err).Warn(action + " failed")
	vm.setStatus(fmt.Sprintf("%s failed: %v", action, err))
	return err
}

func (vm *ViewModel) snapshot() map[string]interface{} {
	defer vm.viewModelsLock.Unlock()
	vm.viewModelsLock.Lock()

	m := make(map[string]interface{}, len(vm.viewModels))
	for k, v := range vm.viewModels {
		m[k] = v
	}
	return m
}

// commandFor looks command up in a child view model's command table.
func commandFor(commands map[string]interfaces.Command, command string) (interfaces.Command, error) {
	ce, ok := commands[command]
	if !ok {
		return nil, fmt.Errorf("no command '%s' found", command)
	}
	return ce, nil
}
