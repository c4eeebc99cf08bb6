// Copyright 2025 Tom Barlow
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

/*
Package client provides the CLI's HTTP client for a bld server's REST
surface (§6): run, stop, push, pull, list, rm, deps and hist.

	c, err := client.New("http://localhost:6080", client.WithToken(token))
	if err != nil {
	    log.Fatal(err)
	}
	runID, err := c.Run(ctx, client.RunRequest{Pipeline: "build"})

A server with no auth_token configured accepts unauthenticated requests;
WithToken is then simply omitted.
*/
package client
