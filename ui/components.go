package ui

import "context"

// Option adjusts component registration.
type Option func(*componentOptions)

type componentOptions struct {
	id          string
	placeholder string
	accept      []string
	multiple    bool
	multipleSet bool
}

// WithID overrides the derived component id.
func WithID(id string) Option {
	return func(o *componentOptions) { o.id = id }
}

// WithPlaceholder sets the text input placeholder.
func WithPlaceholder(placeholder string) Option {
	return func(o *componentOptions) { o.placeholder = placeholder }
}

// WithAccept restricts uploader MIME types.
func WithAccept(mimes ...string) Option {
	return func(o *componentOptions) { o.accept = mimes }
}

// WithMultiple toggles multi-file uploads.
func WithMultiple(multiple bool) Option {
	return func(o *componentOptions) {
		o.multiple = multiple
		o.multipleSet = true
	}
}

func buildOptions(opts []Option) componentOptions {
	var built componentOptions
	for _, opt := range opts {
		opt(&built)
	}
	return built
}

// Page opens a page scope, runs body inside it, and restores the previously
// active page on every exit path. Typical apps declare one top-level page.
func Page(ctx context.Context, title, description string, body func(ctx context.Context) error) error {
	ctx, rt := Ensure(ctx)

	page := &PageSpec{Title: title, Description: description}
	rt.pushPage(page)
	defer rt.popPage()

	return body(ctx)
}

// TextValue is a lazy reference to a text input. Reading it resolves the
// posted value at read time, not at registration time.
type TextValue struct {
	id string
	rt *Runtime
}

// ID returns the component id the reference is bound to.
func (v TextValue) ID() string { return v.id }

// Value returns the posted input, or "" when none was submitted.
func (v TextValue) Value() string {
	if v.rt == nil {
		return ""
	}
	return v.rt.Inputs[v.id]
}

func (v TextValue) String() string { return v.Value() }

// FileValue is a lazy reference to a file uploader.
type FileValue struct {
	id string
	rt *Runtime
}

// ID returns the component id the reference is bound to.
func (v FileValue) ID() string { return v.id }

// Paths returns the stored paths of the submitted files, empty when none.
func (v FileValue) Paths() []string {
	if v.rt == nil {
		return nil
	}
	return v.rt.Files[v.id]
}

// TextInput registers a text input on the active page.
func TextInput(ctx context.Context, label string, opts ...Option) (TextValue, error) {
	rt := FromContext(ctx)
	if rt == nil {
		return TextValue{}, ErrNoActivePage
	}

	built := buildOptions(opts)
	props := map[string]any{"placeholder": built.placeholder}
	if built.id != "" {
		props["id"] = built.id
	}

	id, err := rt.register(ComponentText, label, props)
	if err != nil {
		return TextValue{}, err
	}
	return TextValue{id: id, rt: rt}, nil
}

// FileUploader registers a file uploader on the active page.
func FileUploader(ctx context.Context, label string, opts ...Option) (FileValue, error) {
	rt := FromContext(ctx)
	if rt == nil {
		return FileValue{}, ErrNoActivePage
	}

	built := buildOptions(opts)
	multiple := true
	if built.multipleSet {
		multiple = built.multiple
	}
	accept := built.accept
	if accept == nil {
		accept = []string{}
	}
	props := map[string]any{"accept": accept, "multiple": multiple}
	if built.id != "" {
		props["id"] = built.id
	}

	id, err := rt.register(ComponentFile, label, props)
	if err != nil {
		return FileValue{}, err
	}
	return FileValue{id: id, rt: rt}, nil
}

// Button registers a button and reports whether it is the trigger of the
// current execution.
func Button(ctx context.Context, label string, opts ...Option) (bool, error) {
	rt := FromContext(ctx)
	if rt == nil {
		return false, ErrNoActivePage
	}

	built := buildOptions(opts)
	props := map[string]any{}
	if built.id != "" {
		props["id"] = built.id
	}

	id, err := rt.register(ComponentButton, label, props)
	if err != nil {
		return false, err
	}
	return rt.Trigger == id, nil
}

// Chat registers the conversation panel.
func Chat(ctx context.Context) error {
	rt := FromContext(ctx)
	if rt == nil {
		return ErrNoActivePage
	}

	_, err := rt.register(ComponentChat, "Conversation", map[string]any{})
	return err
}
