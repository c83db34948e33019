package main

const Version = "1.0.0"
