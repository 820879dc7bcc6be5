package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseOverride_ActionOnly(t *testing.T) {
	cmd, err := parseOverride([]string{"idle"})

	require.NoError(t, err)
	assert.Equal(t, CommandOverride, cmd.Kind)
	assert.Equal(t, "idle", cmd.Action)
	assert.Nil(t, cmd.PowerKW)
	assert.Nil(t, cmd.DurationMinutes)
}

func TestParseOverride_Full(t *testing.T) {
	cmd, err := parseOverride([]string{"charge", "5.0", "30"})

	require.NoError(t, err)
	assert.Equal(t, "charge", cmd.Action)
	require.NotNil(t, cmd.PowerKW)
	assert.Equal(t, 5.0, *cmd.PowerKW)
	require.NotNil(t, cmd.DurationMinutes)
	assert.Equal(t, 30, *cmd.DurationMinutes)
}

func TestParseOverride_Invalid(t *testing.T) {
	_, err := parseOverride(nil)
	assert.Error(t, err)

	_, err = parseOverride([]string{"charge", "lots"})
	assert.Error(t, err)

	_, err = parseOverride([]string{"charge", "5.0", "-1"})
	assert.Error(t, err)

	_, err = parseOverride([]string{"charge", "5.0", "30", "extra"})
	assert.Error(t, err)
}

func TestHandleConsoleCommand_SendsCommands(t *testing.T) {
	commandChan := make(chan Command, 1)
	state := &ConsoleState{states: NewEntityStates()}

	handleConsoleCommand("enable", state, commandChan)
	assert.Equal(t, Command{Kind: CommandEnable}, <-commandChan)

	handleConsoleCommand("disable", state, commandChan)
	assert.Equal(t, Command{Kind: CommandDisable}, <-commandChan)

	handleConsoleCommand("override discharge 2.5", state, commandChan)
	cmd := <-commandChan
	assert.Equal(t, CommandOverride, cmd.Kind)
	assert.Equal(t, "discharge", cmd.Action)
	require.NotNil(t, cmd.PowerKW)
	assert.Equal(t, 2.5, *cmd.PowerKW)
}

func TestHandleConsoleCommand_UnknownDoesNotSend(t *testing.T) {
	commandChan := make(chan Command, 1)
	state := &ConsoleState{states: NewEntityStates()}

	handleConsoleCommand("reboot", state, commandChan)
	handleConsoleCommand("", state, commandChan)

	assert.Empty(t, commandChan)
}
