package executor_test

import (
	"fmt"

	"github.com/chicogong/ytagents/pkg/executor"
)

// ExampleCommandBuilder demonstrates building the assembly command
func ExampleCommandBuilder() {
	builder := executor.NewCommandBuilder("ffmpeg")
	cmd, err := builder.Build(executor.AssemblySpec{
		AudioPath:       "/tmp/voiceover.wav",
		OutputPath:      "/tmp/final.mp4",
		DurationSeconds: 30,
	}, "")
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}

	fmt.Printf("Command: %s\n", cmd.Args[0])
	fmt.Printf("Output: %s\n", cmd.Args[len(cmd.Args)-1])

	// Output:
	// Command: ffmpeg
	// Output: /tmp/final.mp4
}
