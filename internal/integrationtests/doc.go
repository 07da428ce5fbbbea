// Package integrationtests runs complete HCL scenarios through the App.
package integrationtests
