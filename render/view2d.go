package render

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/gogpu/volren/volume"
)

// Axis is a volume axis.
type Axis uint8

const (
	AxisX Axis = iota
	AxisY
	AxisZ
)

// String returns "x", "y" or "z".
func (a Axis) String() string {
	switch a {
	case AxisX:
		return "x"
	case AxisY:
		return "y"
	case AxisZ:
		return "z"
	default:
		return fmt.Sprintf("Axis(%d)", a)
	}
}

// ParseAxis parses "x", "y" or "z".
func ParseAxis(s string) (Axis, error) {
	switch s {
	case "x", "X":
		return AxisX, nil
	case "y", "Y":
		return AxisY, nil
	case "z", "Z":
		return AxisZ, nil
	}
	return 0, fmt.Errorf("%w: axis %q", ErrInvalidSlice, s)
}

func (a Axis) of(c volume.Coord) int {
	switch a {
	case AxisX:
		return c.X
	case AxisY:
		return c.Y
	default:
		return c.Z
	}
}

// Slice is one axis-aligned plane of the finest level, Index voxels from
// the origin along Axis.
type Slice struct {
	Axis  Axis
	Index int
}

// String returns "axis:index".
func (s Slice) String() string { return fmt.Sprintf("%s:%d", s.Axis, s.Index) }

// ParseSlice parses the "axis:index" form returned by Slice.String.
func ParseSlice(str string) (Slice, error) {
	a, i, ok := strings.Cut(str, ":")
	if !ok {
		return Slice{}, fmt.Errorf("%w: %q is not axis:index", ErrInvalidSlice, str)
	}
	axis, err := ParseAxis(a)
	if err != nil {
		return Slice{}, err
	}
	index, err := strconv.Atoi(i)
	if err != nil {
		return Slice{}, fmt.Errorf("%w: index %q", ErrInvalidSlice, i)
	}
	return Slice{Axis: axis, Index: index}, nil
}

// PaintSlice draws one axis-aligned slice of the finest level through the
// transfer function of the current mode and presents it. Only bricks the
// plane crosses are acquired. The progressive volume state is left as it
// was, so the next Paint continues where it stopped.
func (c *Context) PaintSlice(s Slice) error {
	if err := c.ready(); err != nil {
		return err
	}
	if c.dataset == nil {
		return ErrNoDataset
	}
	if s.Axis > AxisZ {
		return fmt.Errorf("%w: %s", ErrInvalidSlice, s)
	}
	if n := s.Axis.of(c.dataset.Size(0)); s.Index < 0 || s.Index >= n {
		return fmt.Errorf("%w: %s outside [0,%d)", ErrInvalidSlice, s, n)
	}

	pass, err := c.newPass(0, sliceRole(c.mode))
	if err != nil {
		return err
	}
	if pass.Program == nil {
		return ErrNoProgram
	}
	full := s.Axis.of(c.dataset.BrickSize(volume.BrickKey{}))
	var keys []volume.BrickKey
	for _, key := range volume.Bricks(c.dataset, 0) {
		origin := s.Axis.of(key.Brick) * full
		if s.Index >= origin && s.Index < origin+s.Axis.of(c.dataset.BrickSize(key)) {
			keys = append(keys, key)
		}
	}
	err = c.drawBricks(pass, keys, func(Brick) error {
		pass.Samples++
		pass.Drawn++
		return nil
	})
	if err != nil {
		return err
	}
	if pass.Skipped > 0 {
		c.log.Warn("render: slice bricks skipped for lack of memory", "slice", s.String(), "skipped", pass.Skipped)
	}
	c.log.Debug("render: slice drawn", "slice", s.String(), "bricks", pass.Drawn)

	if c.presenter != nil {
		err := c.presenter.Present(Frame{
			Target:   pass.Target,
			Overlays: c.overlays,
			Compose:  c.programs[ProgramCompose],
			Complete: true,
			Slice:    &s,
			Pass:     *pass,
		})
		if err != nil {
			return fmt.Errorf("render: present: %w", err)
		}
	}
	return nil
}
