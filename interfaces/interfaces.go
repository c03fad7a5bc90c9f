package interfaces

type CommandArgs interface{}

// ViewModeler lets a view model hand the view a marshal-safe snapshot of itself.
type ViewModeler interface {
	ViewModel() interface{}
}

// Command is an action the view requests by name with JSON arguments.
type Command interface {
	// CreateArgs returns a fresh value for the view's JSON arguments to be
	// unmarshaled into, or nil when the command takes none.
	CreateArgs() CommandArgs
	Execute(args CommandArgs) error
}

// ViewModelCommandHandler is implemented by each child view model.
type ViewModelCommandHandler interface {
	CommandFor(command string) (Command, error)
}

// ViewCommandHandler routes view commands; the root view model implements it.
type ViewCommandHandler interface {
	CommandFor(view, command string) (Command, error)

	NotifyViewTo(viewNotifier ViewNotifier)
}

// ViewNotifier receives modified view models.
type ViewNotifier interface {
	NotifyView(view string, viewModel interface{})
}

type Initializable interface {
	Init()
}

type Updateable interface {
	Update()
}

// Dirtyable view models are only pushed to the view when marked dirty.
type Dirtyable interface {
	IsDirty() bool
	ClearDirty()
	MarkDirty()
}
