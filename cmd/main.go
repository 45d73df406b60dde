package main

import (
	"k8s.io/klog/v2"

	"streamq/cmd/app"
)

func main() {
	cmd := app.NewStreamQCommand()
	if err := cmd.Execute(); err != nil {
		klog.Fatalf("run command: %v", err)
	}
}
