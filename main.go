/*
Copyright the Varco contributors 2023

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package main

import (
	"os"

	"github.com/varcolabs/varco/cmd/varco/app"
	"github.com/varcolabs/varco/pkg/errlog"
)

// Main entry point of the program. Most commands log errors and exit
// manually via os.Exit, in which case the error handling here is never
// invoked; it covers commands that return errors instead.
func main() {
	err := app.NewVarcoCommand().Execute()
	if err != nil {
		errlog.LogError(err)
		os.Exit(1)
	}
}
