// Command anemonetransfer runs scheduled file transfer jobs between local
// folders and SMB, SFTP or FTP servers.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
