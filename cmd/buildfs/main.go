package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"git.sr.ht/~sircmpwn/getopt"
	"github.com/fatih/color"

	buildfs "buildfs-go"
	"buildfs-go/fsserve"
	"buildfs-go/statlog"
)

const usageText = `usage: buildfs [options] <tool> [args...]

options:
  -m    print a metrics report before exiting
  -h    show this message

tools:
  stat <path>...        print the mtime of each path, or 'missing'
  read [-b] <path>      print file contents (-b: binary mode)
  write <path> <text>   create parent directories and write the file
  mkdirs <path>         ensure the parent chain of a file path exists
  rm <path>...          remove files ('rm -f' semantics)
  hash [-t] <path>      print a content hash (-t: whole tree)
  record <db> <path>    record the current state of path into a state log
  changed <db> <path>   report whether path changed since last record
  serve [-a addr] [-d dir] [-x index.db]
                        serve an artifact tree over HTTP
`

func fatal(format string, args ...interface{}) {
	color.New(color.FgRed).Fprintf(os.Stderr, "buildfs: error: "+format+"\n", args...)
	os.Exit(1)
}

func warning(format string, args ...interface{}) {
	color.New(color.FgYellow).Fprintf(os.Stderr, "buildfs: warning: "+format+"\n", args...)
}

func usage(code int) {
	fmt.Fprint(os.Stderr, usageText)
	os.Exit(code)
}

func main() {
	opts, optind, err := getopt.Getopts(os.Args, "mh")
	if err != nil {
		fatal("%v", err)
	}
	reportMetrics := false
	for _, opt := range opts {
		switch opt.Option {
		case 'm':
			reportMetrics = true
		case 'h':
			usage(0)
		}
	}
	args := os.Args[optind:]
	if len(args) == 0 {
		usage(2)
	}
	if reportMetrics {
		buildfs.GMetrics = buildfs.NewMetrics()
		defer buildfs.GMetrics.Report()
	}

	disk := buildfs.NewRealDiskInterface()
	tool, args := args[0], args[1:]
	switch tool {
	case "stat":
		toolStat(disk, args)
	case "read":
		toolRead(disk, args)
	case "write":
		toolWrite(disk, args)
	case "mkdirs":
		toolMakeDirs(disk, args)
	case "rm":
		toolRemove(disk, args)
	case "hash":
		toolHash(args)
	case "record":
		toolRecord(disk, args)
	case "changed":
		toolChanged(disk, args)
	case "serve":
		toolServe(args)
	default:
		fatal("unknown tool '%s'", tool)
	}
}

func toolStat(disk buildfs.DiskInterface, args []string) {
	if len(args) == 0 {
		fatal("stat: expected at least one path")
	}
	for _, path := range args {
		mtime, err := disk.Stat(path)
		if err != nil {
			fatal("%v", err)
		}
		if mtime == 0 {
			fmt.Printf("%s: missing\n", path)
			continue
		}
		fmt.Printf("%s: %d\n", path, mtime)
	}
}

func toolRead(disk buildfs.DiskInterface, args []string) {
	opts, optind, err := getopt.Getopts(append([]string{"read"}, args...), "b")
	if err != nil {
		fatal("read: %v", err)
	}
	binary := false
	for _, opt := range opts {
		if opt.Option == 'b' {
			binary = true
		}
	}
	args = args[optind-1:]
	if len(args) != 1 {
		fatal("read: expected exactly one path")
	}
	contents, err := disk.ReadFile(args[0], binary)
	if err != nil {
		fatal("%v", err)
	}
	os.Stdout.WriteString(contents)
}

func toolWrite(disk buildfs.DiskInterface, args []string) {
	if len(args) != 2 {
		fatal("write: expected a path and contents")
	}
	if err := buildfs.MakeDirs(disk, args[0]); err != nil {
		fatal("%v", err)
	}
	if err := disk.WriteFile(args[0], args[1]); err != nil {
		fatal("%v", err)
	}
}

func toolMakeDirs(disk buildfs.DiskInterface, args []string) {
	if len(args) != 1 {
		fatal("mkdirs: expected exactly one path")
	}
	if err := buildfs.MakeDirs(disk, args[0]); err != nil {
		fatal("%v", err)
	}
}

func toolRemove(disk buildfs.DiskInterface, args []string) {
	if len(args) == 0 {
		fatal("rm: expected at least one path")
	}
	for _, path := range args {
		status, err := disk.RemoveFile(path)
		if status == buildfs.RemoveError {
			fatal("%v", err)
		}
		if status == buildfs.Absent {
			warning("%s did not exist", path)
		}
	}
}

func toolHash(args []string) {
	opts, optind, err := getopt.Getopts(append([]string{"hash"}, args...), "t")
	if err != nil {
		fatal("hash: %v", err)
	}
	tree := false
	for _, opt := range opts {
		if opt.Option == 't' {
			tree = true
		}
	}
	args = args[optind-1:]
	if len(args) != 1 {
		fatal("hash: expected exactly one path")
	}
	var sum uint64
	if tree {
		sum, err = buildfs.HashTree(args[0], "")
	} else {
		sum, err = buildfs.HashFile(args[0], "")
	}
	if err != nil {
		fatal("%v", err)
	}
	fmt.Printf("%016x\n", sum)
}

func toolRecord(disk buildfs.DiskInterface, args []string) {
	if len(args) != 2 {
		fatal("record: expected a database and a path")
	}
	log, err := statlog.Open(args[0])
	if err != nil {
		fatal("%v", err)
	}
	defer log.Close()
	mtime, err := disk.Stat(args[1])
	if err != nil {
		fatal("%v", err)
	}
	if mtime == 0 {
		fatal("record: %s does not exist", args[1])
	}
	sum, err := buildfs.HashFile(args[1], "")
	if err != nil {
		fatal("%v", err)
	}
	if err := log.Record(args[1], mtime, sum, 30*24*time.Hour); err != nil {
		fatal("%v", err)
	}
}

func toolChanged(disk buildfs.DiskInterface, args []string) {
	if len(args) != 2 {
		fatal("changed: expected a database and a path")
	}
	log, err := statlog.Open(args[0])
	if err != nil {
		fatal("%v", err)
	}
	defer log.Close()
	changed, err := log.Changed(disk, args[1])
	if err != nil {
		fatal("%v", err)
	}
	if changed {
		fmt.Printf("%s: changed\n", args[1])
		os.Exit(1)
	}
	fmt.Printf("%s: unchanged\n", args[1])
}

func toolServe(args []string) {
	cfg := fsserve.Config{
		Addr:               "localhost:8080",
		RootDir:            ".",
		IndexPath:          "buildfs-index.db",
		GenerateIndexPages: true,
	}
	opts, optind, err := getopt.Getopts(append([]string{"serve"}, args...), "a:d:x:cbv")
	if err != nil {
		fatal("serve: %v", err)
	}
	for _, opt := range opts {
		switch opt.Option {
		case 'a':
			cfg.Addr = opt.Value
		case 'd':
			cfg.RootDir = opt.Value
		case 'x':
			cfg.IndexPath = opt.Value
		case 'c':
			cfg.Compress = true
		case 'b':
			cfg.ByteRange = true
		case 'v':
			cfg.VHost = true
		}
	}
	if len(args[optind-1:]) != 0 {
		fatal("serve: unexpected arguments")
	}
	server, err := fsserve.New(cfg)
	if err != nil {
		fatal("%v", err)
	}
	go func() {
		sigch := make(chan os.Signal, 1)
		signal.Notify(sigch, os.Interrupt)
		<-sigch
		fmt.Println("Interrupted. Exiting.")
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			warning("%v", err)
		}
	}()
	if err := server.ListenAndServe(); err != nil {
		fatal("%v", err)
	}
}
