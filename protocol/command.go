package protocol

import (
	"fmt"
	"strconv"
	"strings"
)

// Command builds a single command line.  Values passed to [Command.Arg]
// are escaped; names and flags are written verbatim.
//
//	NewCommand("clientmove").Group("clid", 5, 7).Arg("cid", 12).String()
//	// clientmove clid=5|clid=7 cid=12
type Command struct {
	parts []string
}

// NewCommand starts a command line with the given verb.
func NewCommand(name string) *Command {
	return &Command{parts: []string{name}}
}

// Arg appends key=value, escaping the value.
func (c *Command) Arg(key string, value interface{}) *Command {
	c.parts = append(c.parts, key+"="+Encode(formatValue(value)))
	return c
}

// ArgIf appends key=value only when cond holds.
func (c *Command) ArgIf(cond bool, key string, value interface{}) *Command {
	if cond {
		c.Arg(key, value)
	}
	return c
}

// Flag appends a bare option such as "-uid".
func (c *Command) Flag(name string) *Command {
	c.parts = append(c.parts, name)
	return c
}

// Value appends a positional, escaped value (e.g. login credentials).
func (c *Command) Value(v interface{}) *Command {
	c.parts = append(c.parts, Encode(formatValue(v)))
	return c
}

// Group appends key=v1|key=v2|... for commands that act on several
// targets at once.
func (c *Command) Group(key string, values ...int) *Command {
	if len(values) == 0 {
		return c
	}
	items := make([]string, len(values))
	for i, v := range values {
		items[i] = key + "=" + strconv.Itoa(v)
	}
	c.parts = append(c.parts, strings.Join(items, "|"))
	return c
}

// Name returns the command verb.
func (c *Command) Name() string { return c.parts[0] }

// String renders the command line without a trailing newline.
func (c *Command) String() string { return strings.Join(c.parts, " ") }

func formatValue(v interface{}) string {
	switch x := v.(type) {
	case string:
		return x
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case bool:
		if x {
			return "1"
		}
		return "0"
	default:
		return fmt.Sprint(x)
	}
}
