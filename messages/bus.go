package messages

// Publisher receives everything the planner emits.
type Publisher interface {
	PublishPath(PathMsg)
	PublishTrajectory(TrajectoryMsg)
	PublishTree(TreeView)
	PublishCorridor(CorridorView)
	PublishTrajectoryView(TrajectoryView)
}

// CommandPublisher receives follower setpoints.
type CommandPublisher interface {
	PublishCommand(Command)
}

// Bus is an in-process set of topics connecting the planner, the follower and the robot.
type Bus struct {
	Odometry       *Topic[Odometry]
	Goal           *Topic[GoalPath]
	Cloud          *Topic[PointCloud]
	ObstacleState  *Topic[ObstacleState]
	Path           *Topic[PathMsg]
	Trajectory     *Topic[TrajectoryMsg]
	Command        *Topic[Command]
	Tree           *Topic[TreeView]
	Corridor       *Topic[CorridorView]
	TrajectoryView *Topic[TrajectoryView]
}

// NewBus returns a bus with every topic created.
func NewBus() *Bus {
	return &Bus{
		Odometry:       NewTopic[Odometry](),
		Goal:           NewTopic[GoalPath](),
		Cloud:          NewTopic[PointCloud](),
		ObstacleState:  NewTopic[ObstacleState](),
		Path:           NewTopic[PathMsg](),
		Trajectory:     NewTopic[TrajectoryMsg](),
		Command:        NewTopic[Command](),
		Tree:           NewTopic[TreeView](),
		Corridor:       NewTopic[CorridorView](),
		TrajectoryView: NewTopic[TrajectoryView](),
	}
}

// PublishPath implements Publisher.
func (b *Bus) PublishPath(m PathMsg) { b.Path.Publish(m) }

// PublishTrajectory implements Publisher.
func (b *Bus) PublishTrajectory(m TrajectoryMsg) { b.Trajectory.Publish(m) }

// PublishTree implements Publisher.
func (b *Bus) PublishTree(m TreeView) { b.Tree.Publish(m) }

// PublishCorridor implements Publisher.
func (b *Bus) PublishCorridor(m CorridorView) { b.Corridor.Publish(m) }

// PublishTrajectoryView implements Publisher.
func (b *Bus) PublishTrajectoryView(m TrajectoryView) { b.TrajectoryView.Publish(m) }

// PublishCommand implements CommandPublisher.
func (b *Bus) PublishCommand(m Command) { b.Command.Publish(m) }

// Close closes every topic.
func (b *Bus) Close() {
	b.Odometry.Close()
	b.Goal.Close()
	b.Cloud.Close()
	b.ObstacleState.Close()
	b.Path.Close()
	b.Trajectory.Close()
	b.Command.Close()
	b.Tree.Close()
	b.Corridor.Close()
	b.TrajectoryView.Close()
}
