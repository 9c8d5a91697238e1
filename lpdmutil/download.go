/*
Copyright © 2018 the LPDM authors.
This file is part of LPDM.

LPDM is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

LPDM is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with LPDM.  If not, see <http://www.gnu.org/licenses/>.
*/

package lpdmutil

import (
	"fmt"
	"io"
	"io/ioutil"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cenkalti/backoff"
)

// maybeDownload checks if the input is an existing file locally. If not,
// it checks if the input is a URL; if it is, it downloads the file and
// returns the path to the downloaded copy. Otherwise the input is
// returned unchanged so that opening it reports the underlying problem.
func maybeDownload(path string) string {
	// Check if local file exists. If it does, return the given path.
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		return path
	}

	// If the path starts with one of these prefixes, download the file
	// and return the location it was downloaded to.
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return downloadHTTP(path)
	}

	return path
}

// downloadHTTP downloads a file from the specified URL and returns the
// path to the downloaded file. Transient failures are retried with
// exponential backoff; after the retries run out the original URL is
// returned so the caller's open reports the failure.
func downloadHTTP(path string) string {
	// Prepare a temporary directory for the downloads.
	dir, err := ioutil.TempDir("", "lpdm")
	if err != nil {
		panic(fmt.Errorf("lpdm: failed creating temporary download directory: %v", err))
	}

	w, err := os.Create(filepath.Join(dir, filepath.Base(path)))
	if err != nil {
		panic(fmt.Errorf("lpdm: failed creating file for download: %v", err))
	}
	defer w.Close()

	var resp *http.Response
	err = backoff.RetryNotify(
		func() error {
			var err error
			resp, err = http.Get(path)
			if err != nil {
				return err
			}
			if resp.StatusCode != http.StatusOK {
				resp.Body.Close()
				return fmt.Errorf("lpdm: downloading %s: %s", path, resp.Status)
			}
			return nil
		},
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 5),
		func(err error, d time.Duration) {
			log.Printf("%v: retrying in %v", err, d)
		},
	)
	if err != nil {
		log.Println(err)
		return path
	}
	defer resp.Body.Close()

	if _, err := io.Copy(w, resp.Body); err != nil {
		log.Println(err)
		return path
	}
	return w.Name()
}
