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
	"io/ioutil"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
)

func TestMaybeDownloadLocal(t *testing.T) {
	if k := maybeDownload("/dev/null"); k != "/dev/null" {
		t.Error("Expected /dev/null, got ", k)
	}
}

func TestMaybeDownloadMissing(t *testing.T) {
	if k := maybeDownload("/blah/test/"); k != "/blah/test/" {
		t.Error("Expected /blah/test/, got ", k)
	}
}

func TestMaybeDownloadRemote(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, "netcdf bytes")
		}))
	defer srv.Close()

	url := srv.URL + "/met.nc"
	local := maybeDownload(url)
	if local == url {
		t.Fatal("remote file was not downloaded")
	}
	if filepath.Base(local) != "met.nc" {
		t.Errorf("downloaded name: have %q, want met.nc", filepath.Base(local))
	}
	b, err := ioutil.ReadFile(local)
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != "netcdf bytes" {
		t.Errorf("downloaded content: have %q", b)
	}
}

func TestMaybeDownloadRemoteFail(t *testing.T) {
	// A server that always fails; after the retries run out the URL is
	// returned unchanged so the caller reports the failure.
	srv := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "gone", http.StatusNotFound)
		}))
	defer srv.Close()

	url := srv.URL + "/met.nc"
	if k := maybeDownload(url); k != url {
		t.Error("Expected ", url, ", got ", k)
	}
}
