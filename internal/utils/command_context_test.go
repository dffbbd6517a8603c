package utils_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/shellbridge/shellbridge/internal/utils"
)

const (
	commandContextConfigurationPathConstant    = "/tmp/shellbridge/config.yaml"
	commandContextRoundTripTestNameConstant    = "round_trip"
	commandContextMissingValueTestNameConstant = "missing_value"
	commandContextNilContextTestNameConstant   = "nil_context"
)

func TestCommandContextAccessorConfigurationFilePath(testInstance *testing.T) {
	accessor := utils.NewCommandContextAccessor()

	testInstance.Run(commandContextRoundTripTestNameConstant, func(testInstance *testing.T) {
		updatedContext := accessor.WithConfigurationFilePath(context.Background(), commandContextConfigurationPathConstant)

		resolvedPath, pathAvailable := accessor.ConfigurationFilePath(updatedContext)
		require.True(testInstance, pathAvailable)
		require.Equal(testInstance, commandContextConfigurationPathConstant, resolvedPath)
	})

	testInstance.Run(commandContextMissingValueTestNameConstant, func(testInstance *testing.T) {
		resolvedPath, pathAvailable := accessor.ConfigurationFilePath(context.Background())
		require.False(testInstance, pathAvailable)
		require.Empty(testInstance, resolvedPath)
	})

	testInstance.Run(commandContextNilContextTestNameConstant, func(testInstance *testing.T) {
		resolvedPath, pathAvailable := accessor.ConfigurationFilePath(nil)
		require.False(testInstance, pathAvailable)
		require.Empty(testInstance, resolvedPath)

		updatedContext := accessor.WithConfigurationFilePath(nil, commandContextConfigurationPathConstant)
		resolvedPath, pathAvailable = accessor.ConfigurationFilePath(updatedContext)
		require.True(testInstance, pathAvailable)
		require.Equal(testInstance, commandContextConfigurationPathConstant, resolvedPath)
	})
}
