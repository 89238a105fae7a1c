package command

import (
	"fmt"
	"strconv"
	"strings"

	sdkcommands "github.com/cexll/agentsdk-go/pkg/runtime/commands"
)

// IsText reports whether a chat message looks like a typed command.
func IsText(s string) bool {
	return strings.HasPrefix(strings.TrimSpace(s), "/")
}

// ParseText turns "/name arg1 arg2 --opt=value" into an invocation for
// channels without native slash commands. Positional arguments fill the
// definition's options in order; flags name them explicitly. A trailing
// "@botname" on the command is dropped.
func (r *Router) ParseText(text string, base Invocation) (Invocation, error) {
	line := strings.TrimSpace(text)
	if nl := strings.IndexByte(line, '\n'); nl >= 0 {
		line = line[:nl]
	}
	if head, rest, ok := strings.Cut(line, " "); ok {
		line = stripBotSuffix(head) + " " + rest
	} else {
		line = stripBotSuffix(line)
	}

	parsed, err := sdkcommands.Parse(line)
	if err != nil {
		return Invocation{}, err
	}
	call := parsed[0]

	h, ok := r.Lookup(call.Name)
	if !ok {
		return Invocation{}, fmt.Errorf("%w: %s", ErrUnknownCommand, call.Name)
	}
	def := h.Definition()

	inv := base
	inv.Name = def.Name
	inv.Options = make(map[string]Value)

	for i, arg := range call.Args {
		if i >= len(def.Options) {
			return Invocation{}, fmt.Errorf("%w: too many arguments", ErrInvalidOption)
		}
		opt := def.Options[i]
		v, err := parseValue(opt, arg)
		if err != nil {
			return Invocation{}, err
		}
		inv.Options[opt.Name] = v
	}
	for name, raw := range call.Flags {
		opt, ok := def.Option(name)
		if !ok {
			return Invocation{}, fmt.Errorf("%w: unknown option %s", ErrInvalidOption, name)
		}
		v, err := parseValue(opt, raw)
		if err != nil {
			return Invocation{}, err
		}
		inv.Options[opt.Name] = v
	}
	return inv, nil
}

func stripBotSuffix(cmd string) string {
	if at := strings.IndexByte(cmd, '@'); at > 0 {
		return cmd[:at]
	}
	return cmd
}

func parseValue(opt Option, raw string) (Value, error) {
	switch opt.Type {
	case OptionInteger:
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return Value{}, fmt.Errorf("%w: %s must be a whole number", ErrInvalidOption, opt.Name)
		}
		return Value{Type: OptionInteger, Int: n}, nil
	case OptionUser:
		id := strings.TrimPrefix(raw, "@")
		return Value{Type: OptionUser, User: User{ID: id, Name: id}}, nil
	default:
		// choices can be typed by their display name
		for _, c := range opt.Choices {
			if strings.EqualFold(c.Name, raw) {
				return Value{Type: OptionString, Str: c.Value}, nil
			}
		}
		return Value{Type: OptionString, Str: raw}, nil
	}
}
