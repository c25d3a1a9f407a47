// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/kadirpekel/conductor/pkg/chat"
	"github.com/kadirpekel/conductor/pkg/runtime"
)

// RunCmd runs a single requirement to completion in the foreground,
// printing the project chat as it happens.
type RunCmd struct {
	Requirement []string `arg:"" help:"The requirement to fulfill."`
}

// chatPrinter echoes chat messages to stdout as they are published.
type chatPrinter struct{}

func (chatPrinter) Publish(projectID, eventType string, payload any) {
	if eventType != runtime.EventNewMessage {
		return
	}
	msg, ok := payload.(*chat.Message)
	if !ok {
		return
	}
	fmt.Printf("[%s] %s\n", msg.FromName, msg.Content)
}

func (c *RunCmd) Run(cli *CLI) error {
	requirement := strings.TrimSpace(strings.Join(c.Requirement, " "))
	if requirement == "" {
		return fmt.Errorf("requirement cannot be empty")
	}

	cfg, err := cli.loadConfig()
	if err != nil {
		return err
	}

	rt, err := runtime.New(cfg)
	if err != nil {
		return err
	}
	defer rt.Close()
	rt.SetEvents(chatPrinter{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		slog.Info("Cancelling...")
		cancel()
	}()

	proj, err := rt.RunProject(ctx, requirement)
	if err != nil {
		return err
	}

	fmt.Printf("\nProject %s finished: %s\n", proj.ID, proj.GetStatus())
	fmt.Printf("Workspace: %s\n", proj.Workspace)
	return nil
}
