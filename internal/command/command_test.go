package command

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type echoHandler struct {
	def     Definition
	version int
	choices []Choice
}

func (h *echoHandler) Definition() Definition { return h.def }

func (h *echoHandler) Execute(_ context.Context, inv Invocation) (Response, error) {
	day, _ := inv.Int("day")
	month, _ := inv.String("month")
	return Response{Content: fmt.Sprintf("v%d %s %d/%s", h.version, inv.UserOption("user").ID, day, month)}, nil
}

func (h *echoHandler) Autocomplete(context.Context, Invocation) ([]Choice, error) {
	return h.choices, nil
}

func birthdayDef() Definition {
	return Definition{
		Name:        "addbirthday",
		Description: "add",
		Options: []Option{
			{Name: "user", Type: OptionUser, Required: true},
			{Name: "day", Type: OptionInteger, Required: true, MinValue: IntPtr(1), MaxValue: IntPtr(31)},
			{Name: "month", Type: OptionString, Required: true, Choices: []Choice{{Name: "January", Value: "1"}, {Name: "March", Value: "3"}}},
		},
	}
}

func newTestRouter(t *testing.T) (*Router, *int) {
	t.Helper()
	r := NewRouter(zerolog.Nop())
	builds := 0
	require.NoError(t, r.Register(func() Handler {
		builds++
		return &echoHandler{def: birthdayDef(), version: builds}
	}))
	require.NoError(t, r.Register(func() Handler {
		return &echoHandler{def: Definition{Name: "toggleai", Description: "toggle", AdminOnly: true}}
	}))
	r.SetReady(true)
	return r, &builds
}

func validInvocation() Invocation {
	return Invocation{
		Name: "addbirthday",
		User: User{ID: "me", Name: "me"},
		Options: map[string]Value{
			"user":  {Type: OptionUser, User: User{ID: "u1", Name: "vi"}},
			"day":   {Type: OptionInteger, Int: 5},
			"month": {Type: OptionString, Str: "3"},
		},
	}
}

func TestRegisterRejectsDuplicateAndBadNames(t *testing.T) {
	r, _ := newTestRouter(t)
	err := r.Register(func() Handler { return &echoHandler{def: birthdayDef()} })
	require.Error(t, err)

	err = r.Register(func() Handler { return &echoHandler{def: Definition{Name: "Bad Name!"}} })
	require.Error(t, err)

	assert.Equal(t, []string{"addbirthday", "toggleai"}, r.Names())
	assert.Len(t, r.Definitions(), 2)
}

func TestDispatch(t *testing.T) {
	r, _ := newTestRouter(t)
	resp, err := r.Dispatch(context.Background(), validInvocation())
	require.NoError(t, err)
	assert.Equal(t, "v1 u1 5/3", resp.Content)
}

func TestDispatchErrors(t *testing.T) {
	r, _ := newTestRouter(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		mutate func(*Invocation)
		want   error
	}{
		{"unknown", func(inv *Invocation) { inv.Name = "nope" }, ErrUnknownCommand},
		{"missing required", func(inv *Invocation) { delete(inv.Options, "day") }, ErrInvalidOption},
		{"below min", func(inv *Invocation) { inv.Options["day"] = Value{Type: OptionInteger, Int: 0} }, ErrInvalidOption},
		{"above max", func(inv *Invocation) { inv.Options["day"] = Value{Type: OptionInteger, Int: 32} }, ErrInvalidOption},
		{"bad choice", func(inv *Invocation) { inv.Options["month"] = Value{Type: OptionString, Str: "13"} }, ErrInvalidOption},
		{"wrong type", func(inv *Invocation) { inv.Options["day"] = Value{Type: OptionString, Str: "5"} }, ErrInvalidOption},
		{"admin only", func(inv *Invocation) { inv.Name = "toggleai"; inv.Options = nil }, ErrForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inv := validInvocation()
			tt.mutate(&inv)
			_, err := r.Dispatch(ctx, inv)
			require.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}
}

func TestDispatchBeforeReady(t *testing.T) {
	r, _ := newTestRouter(t)
	r.SetReady(false)
	_, err := r.Dispatch(context.Background(), validInvocation())
	require.ErrorIs(t, err, ErrNotReady)
}

func TestAdminMayToggle(t *testing.T) {
	r, _ := newTestRouter(t)
	_, err := r.Dispatch(context.Background(), Invocation{Name: "toggleai", IsAdmin: true})
	require.NoError(t, err)
}

func TestReloadRebuildsHandler(t *testing.T) {
	r, builds := newTestRouter(t)
	require.NoError(t, r.Reload("AddBirthday"))
	assert.Equal(t, 2, *builds)

	resp, err := r.Dispatch(context.Background(), validInvocation())
	require.NoError(t, err)
	assert.Equal(t, "v2 u1 5/3", resp.Content)

	require.ErrorIs(t, r.Reload("missing"), ErrUnknownCommand)
}

func TestAutocompleteCapsChoices(t *testing.T) {
	r := NewRouter(zerolog.Nop())
	many := make([]Choice, 40)
	for i := range many {
		many[i] = Choice{Name: fmt.Sprint(i), Value: fmt.Sprint(i)}
	}
	require.NoError(t, r.Register(func() Handler {
		return &echoHandler{def: Definition{Name: "reload", Description: "reload"}, choices: many}
	}))
	got, err := r.Autocomplete(context.Background(), Invocation{Name: "reload"})
	require.NoError(t, err)
	assert.Len(t, got, MaxChoices)
}

func TestUserOptionDefaultsToInvoker(t *testing.T) {
	inv := Invocation{User: User{ID: "me"}}
	assert.Equal(t, "me", inv.UserOption("user").ID)
}

func TestParseText(t *testing.T) {
	r, _ := newTestRouter(t)
	base := Invocation{Channel: "telegram", ChatID: "42", User: User{ID: "7", Name: "vi"}}

	inv, err := r.ParseText("/addbirthday@CaitlynBot 123 5 march", base)
	require.NoError(t, err)
	assert.Equal(t, "addbirthday", inv.Name)
	assert.Equal(t, "telegram", inv.Channel)
	assert.Equal(t, "123", inv.Options["user"].User.ID)
	assert.EqualValues(t, 5, inv.Options["day"].Int)
	assert.Equal(t, "3", inv.Options["month"].Str)

	inv, err = r.ParseText("/addbirthday --month=1 --day 9 --user=@55", base)
	require.NoError(t, err)
	assert.Equal(t, "55", inv.Options["user"].User.ID)
	assert.EqualValues(t, 9, inv.Options["day"].Int)
	assert.Equal(t, "1", inv.Options["month"].Str)

	_, err = r.ParseText("/addbirthday 1 x", base)
	require.ErrorIs(t, err, ErrInvalidOption)
	_, err = r.ParseText("/addbirthday 1 2 3 4", base)
	require.ErrorIs(t, err, ErrInvalidOption)
	_, err = r.ParseText("/unknown", base)
	require.ErrorIs(t, err, ErrUnknownCommand)

	assert.True(t, IsText("  /ping"))
	assert.False(t, IsText("hello"))
}

func TestErrorReply(t *testing.T) {
	assert.Contains(t, ErrorReply(ErrNotReady).Content, "starting up")
	assert.Contains(t, ErrorReply(ErrForbidden).Content, "administrators")
	assert.Equal(t, GenericFailure, ErrorReply(errors.New("boom")).Content)
	assert.True(t, ErrorReply(fmt.Errorf("%w: day", ErrInvalidOption)).Private)
}
