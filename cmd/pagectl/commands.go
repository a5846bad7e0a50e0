package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/artpar/pagehost/internal/shell/domainclient"
)

// DomainClient is the façade the commands drive.
type DomainClient interface {
	SaveDomain(ctx context.Context, pageID, slug, domain string) domainclient.Status
	RemoveDomain(ctx context.Context, pageID, domain string) domainclient.Status
	Check(ctx context.Context, domain string) domainclient.Status
	Refresh(ctx context.Context, domain string) domainclient.Status
}

// command describes one subcommand.
type command struct {
	args  []string
	usage string
	run   func(ctx context.Context, c DomainClient, args []string) domainclient.Status
}

var commands = map[string]command{
	"add": {
		args:  []string{"page-id", "slug", "domain"},
		usage: "connect a domain to a page and verify it",
		run: func(ctx context.Context, c DomainClient, args []string) domainclient.Status {
			return c.SaveDomain(ctx, args[0], args[1], args[2])
		},
	},
	"remove": {
		args:  []string{"page-id", "domain"},
		usage: "disconnect a domain from a page",
		run: func(ctx context.Context, c DomainClient, args []string) domainclient.Status {
			return c.RemoveDomain(ctx, args[0], args[1])
		},
	},
	"status": {
		args:  []string{"domain"},
		usage: "show verification status",
		run: func(ctx context.Context, c DomainClient, args []string) domainclient.Status {
			return c.Check(ctx, args[0])
		},
	},
	"refresh": {
		args:  []string{"domain"},
		usage: "re-check verification status",
		run: func(ctx context.Context, c DomainClient, args []string) domainclient.Status {
			return c.Refresh(ctx, args[0])
		},
	},
}

// dispatch runs name and prints its Status as JSON.
func dispatch(ctx context.Context, c DomainClient, name string, args []string, stdout, stderr io.Writer) int {
	cmd, ok := commands[name]
	if !ok {
		fmt.Fprintf(stderr, "unknown command: %s\n", name)
		return ExitUsage
	}
	if len(args) != len(cmd.args) {
		fmt.Fprintf(stderr, "usage: pagectl %s", name)
		for _, a := range cmd.args {
			fmt.Fprintf(stderr, " <%s>", a)
		}
		fmt.Fprintf(stderr, "\n  %s\n", cmd.usage)
		return ExitUsage
	}

	status := cmd.run(ctx, c, args)

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(status); err != nil {
		fmt.Fprintf(stderr, "write output: %v\n", err)
		return ExitStepFailed
	}

	for _, e := range status.Errors {
		fmt.Fprintf(stderr, "%s\n", e)
	}
	if !status.OK() {
		return ExitStepFailed
	}
	return ExitSuccess
}
