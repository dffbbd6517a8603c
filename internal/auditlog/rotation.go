package auditlog

import (
	"fmt"
	"os"
)

const backlogPathTemplateConstant = "%s.%d"

// rotateDestinationIfNeeded renames the destination file into the numbered
// backlog when it exceeds the configured maximum size. Backlog files shift to
// the next higher number and entries beyond the retention count are discarded.
func rotateDestinationIfNeeded(configuration Config) error {
	destinationInfo, statError := os.Stat(configuration.DestinationPath)
	if statError != nil {
		if os.IsNotExist(statError) {
			return nil
		}
		return statError
	}

	if destinationInfo.Size() <= configuration.MaximumFileSizeBytes {
		return nil
	}

	oldestBacklogPath := backlogPath(configuration.DestinationPath, configuration.RetentionCount)
	if removeError := os.Remove(oldestBacklogPath); removeError != nil && !os.IsNotExist(removeError) {
		return removeError
	}

	for backlogIndex := configuration.RetentionCount - 1; backlogIndex >= 1; backlogIndex-- {
		currentPath := backlogPath(configuration.DestinationPath, backlogIndex)
		shiftedPath := backlogPath(configuration.DestinationPath, backlogIndex+1)
		if renameError := os.Rename(currentPath, shiftedPath); renameError != nil && !os.IsNotExist(renameError) {
			return renameError
		}
	}

	firstBacklogPath := backlogPath(configuration.DestinationPath, 1)
	if renameError := os.Rename(configuration.DestinationPath, firstBacklogPath); renameError != nil && !os.IsNotExist(renameError) {
		return renameError
	}

	return nil
}

func backlogPath(destinationPath string, backlogIndex int) string {
	return fmt.Sprintf(backlogPathTemplateConstant, destinationPath, backlogIndex)
}
