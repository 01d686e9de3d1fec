// Copyright 2021 IBM Corp.
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
	"fmt"
	"io"
	"os"

	flag "github.com/spf13/pflag"

	"github.com/cloudkeys/apikeys-go-client/dotenv"
)

// usage: print-key [-f .env] [-n API_KEY]
//
// Small CLI utility that prints a stored API key to stdout, so it can be
// used in shell pipelines:
//
//    curl "https://example.googleapis.com/v1/things?key=$(print-key)"
//
// Nothing is sent over the network.

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("print-key", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var envFile string
	fs.StringVarP(&envFile, "env-file", "f", dotenv.DefaultFile, "Path of the dotenv file holding the key")

	var name string
	fs.StringVarP(&name, "name", "n", dotenv.APIKeyVar, "Variable holding the key")

	fs.Usage = func() {
		fmt.Fprintf(stderr, "usage: print-key [options]\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return 2
	}

	key, err := dotenv.Lookup(envFile, name)
	if err != nil {
		fmt.Fprintf(stderr, "%v\n", err)
		return 1
	}

	fmt.Fprintln(stdout, key)
	return 0
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}
