package heater

import (
	"fmt"
	"testing"

	"github.com/samdemo/samrelay/log2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	gpio "github.com/temoto/gpio-cdev-go"
	gpio_mock "github.com/temoto/gpio-cdev-go/mock"
)

func TestHeaterMemory(t *testing.T) {
	t.Parallel()

	out := &Memory{}
	require.NoError(t, out.Write(true))
	h := New(log2.NewTest(t, log2.LDebug), out)
	// forced off at start
	assert.False(t, out.High())
	assert.False(t, h.On())

	h.Set(true)
	assert.True(t, out.High())
	assert.True(t, h.On())
	h.Set(true)
	assert.True(t, out.High())
	h.Set(false)
	assert.False(t, out.High())
	assert.False(t, h.On())

	h.Set(true)
	require.NoError(t, h.Close())
	assert.False(t, out.High())
}

func TestHeaterGPIO(t *testing.T) {
	t.Parallel()

	const line uint32 = 17
	var written []byte
	lines := &gpio_mock.MockLines{}
	lines.On("SetFunc", line).Return(gpio.LineSetFunc(func(b byte) { written = append(written, b) }))
	lines.On("Flush").Return(nil)
	lines.On("Close").Return(nil)
	chip := &gpio_mock.MockChip{}
	chip.On("OpenLines", gpio.GPIOHANDLE_REQUEST_OUTPUT|gpio.GPIOHANDLE_REQUEST_ACTIVE_LOW, consumerLabel, line).Return(lines, nil)
	chip.On("Close").Return(nil)

	out, err := NewGPIOOutput(chip, line, true)
	require.NoError(t, err)
	h := New(log2.NewTest(t, log2.LDebug), out)
	h.Set(true)
	h.Set(false)
	assert.Equal(t, []byte{0, 1, 0}, written)
	lines.AssertNumberOfCalls(t, "Flush", 3)

	require.NoError(t, h.Close())
	chip.AssertExpectations(t)
	lines.AssertExpectations(t)
}

func TestHeaterWriteErrorLogged(t *testing.T) {
	t.Parallel()

	lines := &gpio_mock.MockLines{}
	lines.On("SetFunc", mock.Anything).Return(gpio.LineSetFunc(func(b byte) {}))
	lines.On("Flush").Return(fmt.Errorf("device gone"))
	chip := &gpio_mock.MockChip{}
	chip.On("OpenLines", gpio.GPIOHANDLE_REQUEST_OUTPUT, consumerLabel, uint32(4)).Return(lines, nil)

	out, err := NewGPIOOutput(chip, 4, false)
	require.NoError(t, err)
	errCount := 0
	log := log2.NewTest(t, log2.LDebug)
	log.SetErrorFunc(func(error) { errCount++ })
	h := New(log, out)
	h.Set(true)
	// state follows command even if pin write failed
	assert.True(t, h.On())
	assert.Equal(t, 2, errCount)
}

func TestOpenGPIOBadPin(t *testing.T) {
	t.Parallel()

	_, err := OpenGPIO("/dev/gpiochip0", "abc", false)
	require.Error(t, err)
}
