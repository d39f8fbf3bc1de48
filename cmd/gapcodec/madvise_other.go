//go:build !unix

package main

func adviseSequential(b []byte) error { return nil }
