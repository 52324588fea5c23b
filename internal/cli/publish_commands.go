package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"

	"github.com/BastianD2000/Automated-Workflow-for-Digital-Editions/pkg/exist"
	"github.com/BastianD2000/Automated-Workflow-for-Digital-Editions/pkg/mirror"
)

func runPublish(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("publish", flag.ContinueOnError)
	g := addGlobalFlags(fs)
	collection := fs.String("collection", "", "target eXist collection")
	if err := fs.Parse(args); err != nil {
		return err
	}
	ids := fs.Args()
	if *collection == "" || len(ids) == 0 {
		fs.Usage()
		return errors.New("usage: editions publish --collection <name> <id>...")
	}

	a, err := newApp(g)
	if err != nil {
		return err
	}
	defer a.Close()
	rep, err := a.reporter()
	if err != nil {
		return err
	}

	ec := a.cfg.Exist
	pub, err := exist.NewPublisher(exist.Config{
		FetchServer: ec.FetchServer,
		Server:      ec.Server,
		User:        ec.User,
		Password:    ec.Password,
		Schema:      ec.Schema,
	},
		exist.WithReporter(rep),
		exist.WithHTTPClient(a.http),
		exist.WithLogger(a.logger.With("component", "exist")))
	if err != nil {
		return err
	}

	var errs []error
	for _, id := range ids {
		res, err := pub.Publish(ctx, id, *collection)
		fmt.Printf("%s\t%s\n", id, res.Status)
		for _, d := range res.Diagnostics {
			fmt.Printf("  %s\n", d)
		}
		if err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func runMirror(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("mirror", flag.ContinueOnError)
	g := addGlobalFlags(fs)
	file := fs.String("file", "", "single file to copy")
	dir := fs.String("dir", "", "directory whose XML files are copied")
	subdir := fs.String("subdir", "", "repository directory receiving the files")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if (*file == "") == (*dir == "") {
		fs.Usage()
		return errors.New("exactly one of --file and --dir is required")
	}

	a, err := newApp(g)
	if err != nil {
		return err
	}
	defer a.Close()
	target, err := a.mirrorTarget()
	if err != nil {
		return err
	}
	if target == nil {
		return errors.New("no mirror configured: set mirror.provider and mirror.repository")
	}

	if *file != "" {
		rep, err := a.reporter()
		if err != nil {
			return err
		}
		change, err := mirror.Copy(ctx, target, rep, *file, *subdir)
		if err != nil {
			return err
		}
		fmt.Printf("%s\t%s\n", change, *file)
		return nil
	}

	results, err := mirror.MirrorDir(ctx, target, *dir, *subdir)
	for _, r := range results {
		if r.Err != nil {
			fmt.Printf("failed\t%s\t%v\n", r.Path, r.Err)
			continue
		}
		fmt.Printf("%s\t%s\n", r.Change, r.Path)
	}
	return err
}
