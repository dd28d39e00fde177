// tapbot taps an Android device through adb, either at fixed coordinates
// or wherever a template image shows up on screen.
package main

import "tapbot/internal/cli"

func main() {
	cli.Execute()
}
