// Command zigator is the CLI driver for the forensic analyzer: it loads
// configuration, constructs the KeyRing/SecurityStage/Store/event bus, and
// calls the core's two entry points (ParseCaptureFile/ParseCorpus and
// FinalizeCorpus). No protocol logic lives here.
package main

func main() {
	Execute()
}
