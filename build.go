//go:build ignore

// build.go - City Pulse Build System
// Usage: go run build.go [-target=TARGET]
// Targets: all, web, insights, test, clean

package main

import (
	"flag"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"
)

const module = "citypulse"

var (
	distDir = "dist"

	// Executables (key = cmd dir name, value = output name)
	executables = map[string]string{
		"web":      "citypulse",
		"insights": "insights",
	}

	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorBlue   = "\033[34m"
	colorCyan   = "\033[36m"
)

func main() {
	target := flag.String("target", "all", "Build target")
	verbose := flag.Bool("v", false, "Verbose output")
	flag.Parse()

	fmt.Println(colorCyan + "=========================================" + colorReset)
	fmt.Println(colorCyan + "        City Pulse - Build System        " + colorReset)
	fmt.Println(colorCyan + "=========================================" + colorReset)

	startTime := time.Now()
	var err error
	switch *target {
	case "all":
		for name := range executables {
			if err = buildExecutable(name, *verbose); err != nil {
				break
			}
		}
	case "web", "insights":
		err = buildExecutable(*target, *verbose)
	case "test":
		err = runCommand(*verbose, "go", "test", "./...")
	case "clean":
		err = os.RemoveAll(distDir)
	default:
		fmt.Println("Targets: all, web, insights, test, clean")
		os.Exit(1)
	}
	if err != nil {
		printError(err.Error())
		os.Exit(1)
	}

	printSuccess(fmt.Sprintf("Build completed in %s", time.Since(startTime).Round(time.Millisecond)))
}

func buildExecutable(name string, verbose bool) error {
	output := executables[name]
	if runtime.GOOS == "windows" {
		output += ".exe"
	}
	if err := os.MkdirAll(distDir, 0755); err != nil {
		return fmt.Errorf("create %s: %w", distDir, err)
	}

	ldflags := fmt.Sprintf("-s -w -X %s/pkg/contracts.BuildTime=%s -X %s/pkg/contracts.GitCommit=%s",
		module, time.Now().UTC().Format(time.RFC3339), module, gitCommit())

	printInfo(fmt.Sprintf("Building %s...", name))
	return runCommand(verbose, "go", "build",
		"-ldflags", ldflags,
		"-o", filepath.Join(distDir, output),
		"./cmd/"+name)
}

func gitCommit() string {
	out, err := exec.Command("git", "rev-parse", "--short", "HEAD").Output()
	if err != nil {
		return "unknown"
	}
	return strings.TrimSpace(string(out))
}

func runCommand(verbose bool, name string, args ...string) error {
	if verbose {
		printInfo(name + " " + strings.Join(args, " "))
	}
	cmd := exec.Command(name, args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s %s: %w", name, args[0], err)
	}
	return nil
}

func printInfo(msg string) {
	fmt.Printf("%s[INFO]%s %s\n", colorBlue, colorReset, msg)
}

func printSuccess(msg string) {
	fmt.Printf("%s[SUCCESS]%s %s\n", colorGreen, colorReset, msg)
}

func printError(msg string) {
	fmt.Printf("%s[ERROR]%s %s\n", colorRed, colorReset, msg)
}
