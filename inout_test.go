package wireup

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type serviceParams struct {
	In

	Logger Logger
	Cache  Logger `optional:"true"`
}

type serviceResult struct {
	Out

	Primary *Greeter
	Backup  *Greeter `name:"backup"`
}

func TestParamObjectFillsOptionalFieldWithZeroValue(t *testing.T) {
	p := buildProvider(t, func(c *Collection) {
		require.NoError(t, c.AddSingleton(newConsoleLogger, As(new(Logger))))
		require.NoError(t, c.AddSingleton(func(params serviceParams) (*Greeter, error) {
			assert.NotNil(t, params.Logger)
			assert.Nil(t, params.Cache)
			return &Greeter{Name: "built"}, nil
		}))
	})

	g, err := Resolve[*Greeter](p.RootScope())
	require.NoError(t, err)
	assert.Equal(t, "built", g.Name)
}

func TestResultObjectRegistersEachFieldSeparately(t *testing.T) {
	c := NewCollection()
	err := c.AddSingleton(func() (serviceResult, error) {
		return serviceResult{
			Primary: &Greeter{Name: "primary"},
			Backup:  &Greeter{Name: "backup"},
		}, nil
	})
	require.NoError(t, err)
	assert.True(t, c.HasService(reflectTypeOf[*Greeter]()))
	assert.True(t, c.HasKeyedService(reflectTypeOf[*Greeter](), "backup"))

	p, err := c.Build()
	require.NoError(t, err)
	defer p.Close()

	primary, err := Resolve[*Greeter](p.RootScope())
	require.NoError(t, err)
	assert.Equal(t, "primary", primary.Name)

	backup, err := Resolve[*Greeter](p.RootScope(), Key("backup"))
	require.NoError(t, err)
	assert.Equal(t, "backup", backup.Name)
}

func TestPriorityPicksHighestAmongEqualType(t *testing.T) {
	p := buildProvider(t, func(c *Collection) {
		require.NoError(t, c.AddSingleton(func() (*Greeter, error) { return &Greeter{Name: "low"}, nil }))
		require.NoError(t, c.AddSingleton(func() (*Greeter, error) { return &Greeter{Name: "high"}, nil }, Priority(10)))
	})

	g, err := Resolve[*Greeter](p.RootScope())
	require.NoError(t, err)
	assert.Equal(t, "high", g.Name)
}

func TestNameAndGroupMutuallyExclusive(t *testing.T) {
	c := NewCollection()
	err := c.AddSingleton(newGreeter, Name("a"), Group("b"))
	assert.Error(t, err)
}
