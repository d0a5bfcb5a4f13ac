package main

import (
	"fmt"
	"os"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	var err error
	args := os.Args[2:]
	switch os.Args[1] {
	case "start":
		err = cmdStart(args)
	case "limits":
		err = cmdLimits()
	case "reset-quota":
		err = cmdResetQuota()
	case "transcript":
		err = cmdTranscript(args)
	case "history":
		err = cmdHistory(args)
	case "login":
		err = cmdLogin(args)
	case "logout":
		err = cmdLogout()
	case "resume":
		err = cmdResume(args)
	case "daemon":
		err = cmdDaemon(args)
	case "config":
		err = cmdConfig()
	case "voices":
		err = cmdVoices()
	case "help", "-h", "--help":
		printUsage()
	case "version", "-v", "--version":
		fmt.Printf("intervue %s\n", Version)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`Intervue - Live mock interviews

Usage:
  intervue <command> [arguments]

Interview Commands:
  start           Start an interview
      -job        Target job title (required)
      -questions  Number of questions: 10, 15 or 20 (default 10)
      -difficulty easy, medium or hard (default medium)
      -resume     Resume feedback JSON file (default: saved feedback)
  transcript <id> Show the stored transcript of an interview
  history [id]    List past interviews, or show one
  limits          Show today's remaining interviews
  reset-quota     Restore today's interviews (testing)

Account Commands:
  login <token>   Save the access token
  logout          Remove the saved token
  resume <file>   Save resume feedback JSON for future interviews

Setup Commands:
  daemon <cmd>    Manage the local daemon: start, stop, status, logs
  config          Show current configuration
  voices          List interviewer voices

While interviewing, type your answer and press Enter, or use:
  /end /resume /defer /mic /speaker /camera /voice <male|female> /time /help

Other:
  help            Show this help message
  version         Show version information`)
}
