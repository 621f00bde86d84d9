package stdiomux

// Version is the stdiomux release version.
const Version = "0.1.0"
