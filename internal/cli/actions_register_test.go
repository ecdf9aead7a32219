package cli

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/repmgr-go/repmgr/internal/store"
)

func TestFirstPrimaryRegistration_TrueWhenNoPrimaryExistsYet(t *testing.T) {
	require.True(t, firstPrimaryRegistration(store.NodeTypePrimary, store.StatusNotFound))
}

func TestFirstPrimaryRegistration_FalseWhenPrimaryAlreadyExists(t *testing.T) {
	require.False(t, firstPrimaryRegistration(store.NodeTypePrimary, store.StatusFound))
}

func TestFirstPrimaryRegistration_FalseForStandbyOrWitness(t *testing.T) {
	require.False(t, firstPrimaryRegistration(store.NodeTypeStandby, store.StatusNotFound))
	require.False(t, firstPrimaryRegistration(store.NodeTypeWitness, store.StatusNotFound))
}
